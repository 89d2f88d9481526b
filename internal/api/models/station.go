package models

import (
	"strconv"

	"github.com/drivepulse/drivepulse/internal/features"
	"github.com/drivepulse/drivepulse/internal/query"
	"github.com/drivepulse/drivepulse/internal/station"
)

// Station is the public representation of a charging station.
type Station struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Address        string    `json:"address"`
	Operator       string    `json:"operator"`
	ConnectorType  string    `json:"connectorType"`
	PowerKw        float64   `json:"powerKw"`
	PricePerKwh    float64   `json:"pricePerKwh"`
	AvailableSlots int       `json:"availableSlots"`
	TotalSlots     int       `json:"totalSlots"`
	IsAvailable    bool      `json:"isAvailable"`
	LastUpdated    Timestamp `json:"lastUpdated"`
}

// NewStation converts a registry record.
func NewStation(s station.Station) Station {
	return Station{
		ID:             s.ID,
		Name:           s.Name,
		Latitude:       s.Coordinates.Lat,
		Longitude:      s.Coordinates.Lng,
		Address:        s.Address,
		Operator:       s.Operator,
		ConnectorType:  string(s.ConnectorType),
		PowerKw:        s.PowerKw,
		PricePerKwh:    s.PricePerKwh,
		AvailableSlots: s.AvailableSlots,
		TotalSlots:     s.TotalSlots,
		IsAvailable:    s.IsAvailable(),
		LastUpdated:    Timestamp(s.LastUpdated),
	}
}

// NewStations converts a snapshot, preserving order.
func NewStations(stations []station.Station) []Station {
	out := make([]Station, len(stations))
	for i, s := range stations {
		out[i] = NewStation(s)
	}
	return out
}

// StationMatch is a station with its distance from the caller.
type StationMatch struct {
	Station
	DistanceKm         float64 `json:"distanceKm"`
	ETAMinutes         int     `json:"etaMinutes"`
	EstimatedDriveTime string  `json:"estimatedDriveTime"`
	NavigationURL      string  `json:"navigationUrl"`
}

// NewStationMatch converts a query match.
func NewStationMatch(m query.Match) StationMatch {
	return StationMatch{
		Station:            NewStation(m.Station),
		DistanceKm:         RoundKm(m.DistanceKm),
		ETAMinutes:         m.ETAMinutes,
		EstimatedDriveTime: DriveTime(m.ETAMinutes),
		NavigationURL:      m.NavigationURL,
	}
}

// NewStationMatches converts query matches, preserving order.
func NewStationMatches(matches []query.Match) []StationMatch {
	out := make([]StationMatch, len(matches))
	for i, m := range matches {
		out[i] = NewStationMatch(m)
	}
	return out
}

// DriveTime renders an ETA as "<n> minutes".
func DriveTime(minutes int) string {
	return strconv.Itoa(minutes) + " minutes"
}

// MLStation is a station with derived machine-learning features.
type MLStation struct {
	Station
	UtilizationRate float64 `json:"utilizationRate"`
	IsPeakHours     bool    `json:"isPeakHours"`
	DayOfWeek       int     `json:"dayOfWeek"`
	HourOfDay       int     `json:"hourOfDay"`
}

// NewMLStations converts feature records, preserving order.
func NewMLStations(records []features.Record) []MLStation {
	out := make([]MLStation, len(records))
	for i, r := range records {
		out[i] = MLStation{
			Station:         NewStation(r.Station),
			UtilizationRate: r.UtilizationRate,
			IsPeakHours:     r.IsPeakHour,
			DayOfWeek:       r.DayOfWeek,
			HourOfDay:       r.HourOfDay,
		}
	}
	return out
}

// HistoryResponse lists recent availability changes of one station, newest first.
type HistoryResponse struct {
	StationID string                       `json:"stationId"`
	Limit     int                          `json:"limit"`
	Changes   []station.AvailabilityChange `json:"changes"`
}
