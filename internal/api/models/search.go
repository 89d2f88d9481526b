package models

import "github.com/drivepulse/drivepulse/internal/query"

// NearestRequest is the body of POST /v1/search/nearest. Pointers distinguish
// a missing coordinate from zero.
type NearestRequest struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	MaxDistanceKm *float64 `json:"maxDistanceKm,omitempty"`
}

// NearestResponse is the outcome of a nearest-station search. A search that
// finds nothing is still a 200 with Success false and alternatives attached.
type NearestResponse struct {
	Success             bool           `json:"success"`
	UserLocation        Location       `json:"userLocation"`
	MaxDistanceKm       float64        `json:"maxDistanceKm"`
	NearestStation      *StationMatch  `json:"nearestStation,omitempty"`
	DistanceKm          *float64       `json:"distanceKm,omitempty"`
	ETAMinutes          *int           `json:"etaMinutes,omitempty"`
	EstimatedDriveTime  string         `json:"estimatedDriveTime,omitempty"`
	NavigationURL       string         `json:"navigationUrl,omitempty"`
	Message             string         `json:"message,omitempty"`
	AlternativeStations []StationMatch `json:"alternativeStations,omitempty"`
}

// NewNearestResponse converts a query result.
func NewNearestResponse(result query.NearestResult, message string) NearestResponse {
	resp := NearestResponse{
		Success:       result.Found,
		UserLocation:  Location{Lat: result.Origin.Lat, Lng: result.Origin.Lng},
		MaxDistanceKm: result.MaxDistanceKm,
	}

	if result.Found && result.Nearest != nil {
		match := NewStationMatch(*result.Nearest)
		resp.NearestStation = &match
		resp.DistanceKm = &match.DistanceKm
		resp.ETAMinutes = &match.ETAMinutes
		resp.EstimatedDriveTime = match.EstimatedDriveTime
		resp.NavigationURL = match.NavigationURL
		return resp
	}

	resp.Message = message
	resp.AlternativeStations = NewStationMatches(result.Alternatives)
	return resp
}

// NearbyResponse lists every station within a radius, closest first.
type NearbyResponse struct {
	Success           bool           `json:"success"`
	UserLocation      Location       `json:"userLocation"`
	RadiusKm          float64        `json:"radiusKm"`
	Stations          []StationMatch `json:"stations"`
	TotalStations     int            `json:"totalStations"`
	AvailableStations int            `json:"availableStations"`
}

// NewNearbyResponse converts nearby matches.
func NewNearbyResponse(origin Location, radiusKm float64, matches []query.Match) NearbyResponse {
	stations := NewStationMatches(matches)
	available := 0
	for _, s := range stations {
		if s.IsAvailable {
			available++
		}
	}
	return NearbyResponse{
		Success:           true,
		UserLocation:      origin,
		RadiusKm:          radiusKm,
		Stations:          stations,
		TotalStations:     len(stations),
		AvailableStations: available,
	}
}

// DirectionsResponse carries a turn-by-turn navigation link.
type DirectionsResponse struct {
	Success       bool     `json:"success"`
	NavigationURL string   `json:"navigationUrl"`
	From          Location `json:"from"`
	To            Location `json:"to"`
	Message       string   `json:"message"`
}
