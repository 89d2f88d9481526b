// Package query implements nearest-station and radius searches over a
// point-in-time snapshot of the station registry.
package query

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/drivepulse/drivepulse/internal/geo"
	"github.com/drivepulse/drivepulse/internal/station"
)

// ErrInvalidDistance is returned for a negative or non-finite search distance.
var ErrInvalidDistance = errors.New("invalid search distance")

const (
	// DefaultMaxDistanceKm bounds the nearest-station search.
	DefaultMaxDistanceKm = 20.0

	// DefaultRadiusKm is the radius of a nearby search.
	DefaultRadiusKm = 10.0

	// AverageSpeedKmh is the urban driving speed ETAs are derived from.
	AverageSpeedKmh = 40.0

	// AlternativeCount is how many fallback stations a failed nearest search carries.
	AlternativeCount = 3
)

// Source provides station snapshots. *station.Registry satisfies it.
type Source interface {
	Snapshot() []station.Station
}

// Match is a station paired with its distance from the query origin.
type Match struct {
	Station       station.Station
	DistanceKm    float64
	ETAMinutes    int
	NavigationURL string
}

// NearestResult is the outcome of a nearest-station search. When Found is
// false, Nearest is nil and Alternatives holds the closest stations
// regardless of availability.
type NearestResult struct {
	Found         bool
	Origin        geo.Coordinates
	MaxDistanceKm float64
	Nearest       *Match
	Alternatives  []Match
}

// Engine runs searches against snapshots taken from a Source.
type Engine struct {
	source Source
}

// NewEngine creates a query engine over the given station source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Stations returns the current station snapshot.
func (e *Engine) Stations() []station.Station {
	return e.source.Snapshot()
}

// FindNearest validates the origin and searches for the nearest available
// station within maxDistanceKm.
func (e *Engine) FindNearest(lat, lng, maxDistanceKm float64) (NearestResult, error) {
	origin, err := geo.Validate(lat, lng)
	if err != nil {
		return NearestResult{}, err
	}
	if err := validateDistance(maxDistanceKm); err != nil {
		return NearestResult{}, err
	}
	return FindNearest(e.source.Snapshot(), origin, maxDistanceKm), nil
}

// Nearby validates the origin and returns every station within radiusKm.
func (e *Engine) Nearby(lat, lng, radiusKm float64) ([]Match, error) {
	origin, err := geo.Validate(lat, lng)
	if err != nil {
		return nil, err
	}
	if err := validateDistance(radiusKm); err != nil {
		return nil, err
	}
	return Nearby(e.source.Snapshot(), origin, radiusKm), nil
}

// FindNearest scans the available stations in order and returns the closest
// one within maxDistanceKm (inclusive). Ties keep the first station scanned.
func FindNearest(stations []station.Station, origin geo.Coordinates, maxDistanceKm float64) NearestResult {
	result := NearestResult{
		Origin:        origin,
		MaxDistanceKm: maxDistanceKm,
	}

	best := -1
	bestDistance := math.Inf(1)
	for i, s := range stations {
		if !s.IsAvailable() {
			continue
		}
		d := geo.DistanceKm(origin, s.Coordinates)
		if d <= maxDistanceKm && d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if best < 0 {
		result.Alternatives = Alternatives(stations, origin, AlternativeCount)
		return result
	}

	m := newMatch(origin, stations[best], bestDistance)
	result.Found = true
	result.Nearest = &m
	return result
}

// Nearby returns every station, available or not, within radiusKm
// (inclusive), ordered by ascending distance.
func Nearby(stations []station.Station, origin geo.Coordinates, radiusKm float64) []Match {
	matches := make([]Match, 0, len(stations))
	for _, s := range stations {
		d := geo.DistanceKm(origin, s.Coordinates)
		if d <= radiusKm {
			matches = append(matches, newMatch(origin, s, d))
		}
	}
	sortByDistance(matches)
	return matches
}

// Alternatives returns up to n stations, available or not, closest first.
func Alternatives(stations []station.Station, origin geo.Coordinates, n int) []Match {
	matches := make([]Match, 0, len(stations))
	for _, s := range stations {
		matches = append(matches, newMatch(origin, s, geo.DistanceKm(origin, s.Coordinates)))
	}
	sortByDistance(matches)
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

// ETAMinutes converts a distance into whole minutes of driving at AverageSpeedKmh.
func ETAMinutes(distanceKm float64) int {
	return int(distanceKm / AverageSpeedKmh * 60)
}

func newMatch(origin geo.Coordinates, s station.Station, distanceKm float64) Match {
	return Match{
		Station:       s,
		DistanceKm:    distanceKm,
		ETAMinutes:    ETAMinutes(distanceKm),
		NavigationURL: geo.DirectionsURL(origin, s.Coordinates),
	}
}

// sortByDistance orders matches ascending by distance, keeping scan order for ties.
func sortByDistance(matches []Match) {
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].DistanceKm < matches[b].DistanceKm
	})
}

func validateDistance(km float64) error {
	if math.IsNaN(km) || math.IsInf(km, 0) || km < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDistance, km)
	}
	return nil
}
