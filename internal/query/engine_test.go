package query_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepulse/drivepulse/internal/geo"
	"github.com/drivepulse/drivepulse/internal/query"
	"github.com/drivepulse/drivepulse/internal/station"
)

var now = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func fleet(t *testing.T) []station.Station {
	t.Helper()
	return station.Generate(station.DefaultLocations(), station.NewRand(99), now)
}

func withSlots(stations []station.Station, slots int) []station.Station {
	out := make([]station.Station, len(stations))
	copy(out, stations)
	for i := range out {
		out[i].AvailableSlots = slots
	}
	return out
}

func newRegistry(t *testing.T, stations []station.Station) *station.Registry {
	t.Helper()
	reg, err := station.NewRegistry(stations)
	require.NoError(t, err)
	return reg
}

func TestFindNearest_CityCenterScenario(t *testing.T) {
	stations := withSlots(fleet(t), 0)
	stations[0].AvailableSlots = 2 // PB001 at (31.3259, 75.5792)

	engine := query.NewEngine(newRegistry(t, stations))
	result, err := engine.FindNearest(31.3260, 75.5800, query.DefaultMaxDistanceKm)
	require.NoError(t, err)

	require.True(t, result.Found)
	require.NotNil(t, result.Nearest)
	assert.Equal(t, "PB001", result.Nearest.Station.ID)
	assert.InDelta(t, 0.1, result.Nearest.DistanceKm, 0.05)
	assert.Equal(t, 0, result.Nearest.ETAMinutes)
	assert.Equal(t, "https://www.google.com/maps/dir/31.326,75.58/31.3259,75.5792", result.Nearest.NavigationURL)
	assert.Empty(t, result.Alternatives)
}

func TestFindNearest_SkipsUnavailableStations(t *testing.T) {
	stations := withSlots(fleet(t), 3)
	stations[0].AvailableSlots = 0

	origin := stations[0].Coordinates
	result := query.FindNearest(stations, origin, query.DefaultMaxDistanceKm)

	require.True(t, result.Found)
	assert.NotEqual(t, "PB001", result.Nearest.Station.ID)
	assert.True(t, result.Nearest.Station.IsAvailable())
}

func TestFindNearest_AllUnavailableReturnsThreeAlternatives(t *testing.T) {
	stations := withSlots(fleet(t), 0)
	origin := geo.Coordinates{Lat: 31.3260, Lng: 75.5762}

	result := query.FindNearest(stations, origin, query.DefaultMaxDistanceKm)

	assert.False(t, result.Found)
	assert.Nil(t, result.Nearest)
	require.Len(t, result.Alternatives, 3)
	for i := 1; i < len(result.Alternatives); i++ {
		assert.LessOrEqual(t, result.Alternatives[i-1].DistanceKm, result.Alternatives[i].DistanceKm)
	}
	for _, alt := range result.Alternatives {
		assert.False(t, alt.Station.IsAvailable())
		assert.NotEmpty(t, alt.NavigationURL)
	}
	assert.Equal(t, "PB001", result.Alternatives[0].Station.ID)
}

func TestFindNearest_NothingWithinRadius(t *testing.T) {
	stations := withSlots(fleet(t), 4)
	far := geo.Coordinates{Lat: 28.6139, Lng: 77.2090} // Delhi

	result := query.FindNearest(stations, far, query.DefaultMaxDistanceKm)

	assert.False(t, result.Found)
	assert.Len(t, result.Alternatives, 3)
	assert.Equal(t, query.DefaultMaxDistanceKm, result.MaxDistanceKm)
}

func TestFindNearest_EmptyFleet(t *testing.T) {
	result := query.FindNearest(nil, geo.Coordinates{}, 10)
	assert.False(t, result.Found)
	assert.Empty(t, result.Alternatives)
}

func TestFindNearest_FewerThanThreeStationsGivesFewerAlternatives(t *testing.T) {
	stations := withSlots(fleet(t)[:2], 0)
	result := query.FindNearest(stations, stations[0].Coordinates, 10)
	assert.Len(t, result.Alternatives, 2)
}

func TestFindNearest_InclusiveBoundary(t *testing.T) {
	stations := withSlots(fleet(t), 0)
	stations[4].AvailableSlots = 1
	origin := geo.Coordinates{Lat: 31.3260, Lng: 75.5762}
	exact := geo.DistanceKm(origin, stations[4].Coordinates)

	result := query.FindNearest(stations, origin, exact)
	require.True(t, result.Found)
	assert.Equal(t, stations[4].ID, result.Nearest.Station.ID)

	result = query.FindNearest(stations, origin, math.Nextafter(exact, 0))
	assert.False(t, result.Found)
}

func TestFindNearest_TieKeepsFirstInScanOrder(t *testing.T) {
	stations := withSlots(fleet(t)[:2], 1)
	stations[1].Coordinates = stations[0].Coordinates

	result := query.FindNearest(stations, geo.Coordinates{Lat: 31.0, Lng: 75.0}, 100)
	require.True(t, result.Found)
	assert.Equal(t, stations[0].ID, result.Nearest.Station.ID)
}

func TestFindNearest_NeverExceedsMaxOrReturnsUnavailable(t *testing.T) {
	base := fleet(t)
	rng := station.NewRand(5)

	for i := 0; i < 200; i++ {
		stations := make([]station.Station, len(base))
		copy(stations, base)
		for j := range stations {
			stations[j].AvailableSlots = rng.IntN(stations[j].TotalSlots + 1)
		}
		origin := geo.Coordinates{
			Lat: 31.2 + rng.Float64()*0.2,
			Lng: 75.5 + rng.Float64()*0.3,
		}
		maxKm := rng.Float64() * 15

		result := query.FindNearest(stations, origin, maxKm)
		if result.Found {
			assert.True(t, result.Nearest.Station.IsAvailable())
			assert.LessOrEqual(t, result.Nearest.DistanceKm, maxKm)
		} else {
			assert.LessOrEqual(t, len(result.Alternatives), query.AlternativeCount)
		}
	}
}

func TestNearby_SortedAndWithinRadius(t *testing.T) {
	stations := fleet(t)
	origin := geo.Coordinates{Lat: 31.3260, Lng: 75.5762}

	matches := query.Nearby(stations, origin, 10)
	require.NotEmpty(t, matches)

	for i, m := range matches {
		assert.LessOrEqual(t, m.DistanceKm, 10.0)
		assert.Equal(t, query.ETAMinutes(m.DistanceKm), m.ETAMinutes)
		if i > 0 {
			assert.LessOrEqual(t, matches[i-1].DistanceKm, m.DistanceKm)
		}
	}
}

func TestNearby_IncludesUnavailableStations(t *testing.T) {
	stations := withSlots(fleet(t), 0)
	matches := query.Nearby(stations, stations[0].Coordinates, 100)
	assert.Len(t, matches, len(stations))
}

func TestNearby_ZeroRadius(t *testing.T) {
	stations := fleet(t)

	assert.Empty(t, query.Nearby(stations, geo.Coordinates{Lat: 31.3260, Lng: 75.5762}, 0))

	matches := query.Nearby(stations, stations[3].Coordinates, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, stations[3].ID, matches[0].Station.ID)
	assert.Equal(t, 0.0, matches[0].DistanceKm)
}

func TestNearby_NoCapOnResults(t *testing.T) {
	stations := fleet(t)
	matches := query.Nearby(stations, stations[0].Coordinates, 1000)
	assert.Len(t, matches, 10)
}

func TestEngine_Validation(t *testing.T) {
	engine := query.NewEngine(newRegistry(t, fleet(t)))

	_, err := engine.FindNearest(91, 0, 20)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	_, err = engine.Nearby(0, -190, 10)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	_, err = engine.Nearby(0, 0, -1)
	assert.ErrorIs(t, err, query.ErrInvalidDistance)

	_, err = engine.FindNearest(0, 0, math.NaN())
	assert.ErrorIs(t, err, query.ErrInvalidDistance)
}

func TestEngine_SnapshotsAreIsolated(t *testing.T) {
	reg := newRegistry(t, withSlots(fleet(t), 1))
	engine := query.NewEngine(reg)

	result, err := engine.FindNearest(31.3259, 75.5792, 20)
	require.NoError(t, err)
	require.True(t, result.Found)

	_, err = reg.Mutate(result.Nearest.Station.ID, 0, now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Nearest.Station.AvailableSlots)
	assert.Len(t, engine.Stations(), 10)
}

func TestETAMinutes(t *testing.T) {
	tests := []struct {
		km       float64
		expected int
	}{
		{0, 0},
		{0.6, 0},
		{0.7, 1},
		{10, 15},
		{20, 30},
		{13.3, 19},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, query.ETAMinutes(tt.km), "distance %v", tt.km)
	}
}
