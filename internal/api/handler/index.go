package handler

import (
	"net/http"

	"github.com/drivepulse/drivepulse/internal/api/models"
	"github.com/drivepulse/drivepulse/internal/api/response"
)

// IndexHandler serves the service banner.
type IndexHandler struct {
	version string
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(version string) *IndexHandler {
	return &IndexHandler{version: version}
}

// Index handles GET / - service banner and endpoint index.
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.ServiceIndex{
		Message: "EV Charging Station Location-Based Service",
		Version: h.version,
		Endpoints: map[string]string{
			"GET /":                                "API information",
			"GET /v1/stations":                     "All stations",
			"GET /v1/stations/ml":                  "Stations with ML features",
			"GET /v1/stations/{stationId}":         "Single station",
			"GET /v1/stations/{stationId}/history": "Recent availability changes",
			"GET /v1/stations/stream":              "Live availability changes (WebSocket)",
			"POST /v1/search/nearest":              "Nearest available station",
			"GET /v1/search/nearby":                "Stations within a radius",
			"GET /v1/directions":                   "Google Maps directions link",
			"GET /v1/export/ml.csv":                "ML dataset download",
			"GET /v1/map/stations.geojson":         "Station map layer",
			"GET /v1/map/navigation.geojson":       "Navigation map layer",
			"GET /v1/ops/health":                   "Liveness",
			"GET /v1/ops/ready":                    "Readiness",
			"GET /v1/ops/status":                   "Subsystem and sink status",
		},
	})
}
