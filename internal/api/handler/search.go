package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/drivepulse/drivepulse/internal/api/models"
	"github.com/drivepulse/drivepulse/internal/api/response"
	"github.com/drivepulse/drivepulse/internal/geo"
	"github.com/drivepulse/drivepulse/internal/query"
	"github.com/drivepulse/drivepulse/internal/station"
)

// DefaultNearbyRadiusKm is the radius used by GET /v1/search/nearby when none
// is given. It is wider than the engine default so a caller at the city
// centre sees most of the corridor.
const DefaultNearbyRadiusKm = 15.0

// SearchHandler handles nearest, nearby and directions endpoints.
type SearchHandler struct {
	engine *query.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine *query.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// FindNearest handles POST /v1/search/nearest. An empty search is a 200 with
// success false and the three closest stations as alternatives.
func (h *SearchHandler) FindNearest(w http.ResponseWriter, r *http.Request) {
	var input models.NearestRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "Please provide valid numeric coordinates", nil)
		return
	}

	var missing []models.FieldError
	if input.Latitude == nil {
		missing = append(missing, models.FieldError{Field: "latitude", Message: "is required", Code: "REQUIRED"})
	}
	if input.Longitude == nil {
		missing = append(missing, models.FieldError{Field: "longitude", Message: "is required", Code: "REQUIRED"})
	}
	if len(missing) > 0 {
		response.BadRequest(w, r, "Please provide latitude and longitude in the request body", missing)
		return
	}

	maxDistance := query.DefaultMaxDistanceKm
	if input.MaxDistanceKm != nil {
		maxDistance = *input.MaxDistanceKm
	}

	result, err := h.engine.FindNearest(*input.Latitude, *input.Longitude, maxDistance)
	if err != nil {
		writeQueryError(w, r, err, "maxDistanceKm")
		return
	}

	message := fmt.Sprintf("No available charging stations found within %gkm radius", maxDistance)
	response.JSON(w, r, http.StatusOK, models.NewNearestResponse(result, message))
}

// Nearby handles GET /v1/search/nearby?lat=&lng=&radius=. Missing
// coordinates default to Jalandhar city centre.
func (h *SearchHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fieldErrors []models.FieldError
	lat := floatParam(q.Get("lat"), station.JalandharCenter.Lat, "lat", &fieldErrors)
	lng := floatParam(q.Get("lng"), station.JalandharCenter.Lng, "lng", &fieldErrors)
	radius := floatParam(q.Get("radius"), DefaultNearbyRadiusKm, "radius", &fieldErrors)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "Invalid coordinates", fieldErrors)
		return
	}

	matches, err := h.engine.Nearby(lat, lng, radius)
	if err != nil {
		writeQueryError(w, r, err, "radius")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewNearbyResponse(models.Location{Lat: lat, Lng: lng}, radius, matches))
}

// Directions handles GET /v1/directions?from_lat=&from_lng=&to_lat=&to_lng=.
func (h *SearchHandler) Directions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fieldErrors []models.FieldError
	fromLat := requiredFloatParam(q.Get("from_lat"), "from_lat", &fieldErrors)
	fromLng := requiredFloatParam(q.Get("from_lng"), "from_lng", &fieldErrors)
	toLat := requiredFloatParam(q.Get("to_lat"), "to_lat", &fieldErrors)
	toLng := requiredFloatParam(q.Get("to_lng"), "to_lng", &fieldErrors)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "Invalid coordinates for directions", fieldErrors)
		return
	}

	from, err := geo.Validate(fromLat, fromLng)
	if err != nil {
		writeCoordinateError(w, r, err, "from_")
		return
	}
	to, err := geo.Validate(toLat, toLng)
	if err != nil {
		writeCoordinateError(w, r, err, "to_")
		return
	}

	response.JSON(w, r, http.StatusOK, models.DirectionsResponse{
		Success:       true,
		NavigationURL: geo.DirectionsURL(from, to),
		From:          models.Location{Lat: from.Lat, Lng: from.Lng},
		To:            models.Location{Lat: to.Lat, Lng: to.Lng},
		Message:       "Open this URL in Google Maps for turn-by-turn directions",
	})
}

// writeQueryError maps engine validation errors to 400 problems.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error, distanceField string) {
	if errors.Is(err, query.ErrInvalidDistance) {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: distanceField, Message: "must be a non-negative number", Code: "OUT_OF_RANGE"},
		})
		return
	}
	if errors.Is(err, geo.ErrInvalidCoordinate) {
		writeCoordinateError(w, r, err, "")
		return
	}
	response.InternalError(w, r, "search failed")
}

func writeCoordinateError(w http.ResponseWriter, r *http.Request, err error, prefix string) {
	field := "coordinates"
	var coordErr *geo.CoordinateError
	if errors.As(err, &coordErr) {
		field = coordErr.Field
		if prefix != "" {
			field = prefix + "lng"
			if coordErr.Field == "latitude" {
				field = prefix + "lat"
			}
		}
	}
	response.BadRequest(w, r, "Please provide valid latitude (-90 to 90) and longitude (-180 to 180)", []models.FieldError{
		{Field: field, Message: err.Error(), Code: "OUT_OF_RANGE"},
	})
}

func floatParam(raw string, fallback float64, field string, errs *[]models.FieldError) float64 {
	if raw == "" {
		return fallback
	}
	return requiredFloatParam(raw, field, errs)
}

func requiredFloatParam(raw, field string, errs *[]models.FieldError) float64 {
	if raw == "" {
		*errs = append(*errs, models.FieldError{Field: field, Message: "is required", Code: "REQUIRED"})
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, models.FieldError{Field: field, Message: "must be a number", Code: "INVALID_TYPE"})
		return 0
	}
	return v
}
