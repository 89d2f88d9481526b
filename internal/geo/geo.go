// Package geo provides coordinate validation, great-circle distance and
// navigation link helpers shared by the station registry and query engine.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// DirectionsBaseURL is the Google Maps directions endpoint used for navigation links.
const DirectionsBaseURL = "https://www.google.com/maps/dir/"

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Point returns the coordinates as an orb point (lon, lat order).
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// CoordinateError describes which component of a coordinate is out of range.
type CoordinateError struct {
	Field string
	Value float64
}

func (e *CoordinateError) Error() string {
	switch e.Field {
	case "latitude":
		return fmt.Sprintf("latitude %v out of range [-90, 90]", e.Value)
	default:
		return fmt.Sprintf("longitude %v out of range [-180, 180]", e.Value)
	}
}

// Unwrap allows errors.Is(err, ErrInvalidCoordinate).
func (e *CoordinateError) Unwrap() error {
	return ErrInvalidCoordinate
}

// Validate checks lat/lng ranges and returns the coordinates.
func Validate(lat, lng float64) (Coordinates, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Coordinates{}, &CoordinateError{Field: "latitude", Value: lat}
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return Coordinates{}, &CoordinateError{Field: "longitude", Value: lng}
	}
	return Coordinates{Lat: lat, Lng: lng}, nil
}

// DistanceKm returns the great-circle (haversine) distance between a and b in kilometers.
// The result is symmetric and zero when a == b.
func DistanceKm(a, b Coordinates) float64 {
	if a == b {
		return 0
	}
	return orbgeo.DistanceHaversine(a.Point(), b.Point()) / 1000
}

// DirectionsURL builds a Google Maps navigation link between two points.
func DirectionsURL(from, to Coordinates) string {
	return DirectionsBaseURL +
		formatDegrees(from.Lat) + "," + formatDegrees(from.Lng) + "/" +
		formatDegrees(to.Lat) + "," + formatDegrees(to.Lng)
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
