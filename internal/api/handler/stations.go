package handler

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/api/middleware"
	"github.com/drivepulse/drivepulse/internal/api/models"
	"github.com/drivepulse/drivepulse/internal/api/response"
	"github.com/drivepulse/drivepulse/internal/features"
	"github.com/drivepulse/drivepulse/internal/history"
	"github.com/drivepulse/drivepulse/internal/station"
)

// StationSource reads the station registry. *station.Registry satisfies it.
type StationSource interface {
	Snapshot() []station.Station
	Get(id string) (station.Station, error)
}

// StationHandler handles station listing, history and export endpoints.
type StationHandler struct {
	stations StationSource
	history  history.Repository
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStationHandler creates a new StationHandler. repo may be nil, in which
// case the history endpoint answers 503.
func NewStationHandler(stations StationSource, repo history.Repository, logger zerolog.Logger) *StationHandler {
	return &StationHandler{
		stations: stations,
		history:  repo,
		logger:   logger,
		now:      time.Now,
	}
}

// ListStations handles GET /v1/stations.
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewStations(h.stations.Snapshot()))
}

// ListStationsForML handles GET /v1/stations/ml - stations with derived features.
func (h *StationHandler) ListStationsForML(w http.ResponseWriter, r *http.Request) {
	records := features.ExtractAll(h.stations.Snapshot(), h.now())
	response.JSON(w, r, http.StatusOK, models.NewMLStations(records))
}

// GetStation handles GET /v1/stations/{stationId}.
func (h *StationHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewStation(s))
}

// GetHistory handles GET /v1/stations/{stationId}/history?limit=N.
func (h *StationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.history == nil {
		response.ServiceUnavailable(w, r, "availability history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "limit must be an integer", []models.FieldError{
				{Field: "limit", Message: "must be an integer", Code: "INVALID_TYPE"},
			})
			return
		}
		limit = n
	}
	limit, err := history.NormalizeLimit(limit)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "limit", Message: "must be between 1 and " + strconv.Itoa(history.MaxLimit), Code: "OUT_OF_RANGE"},
		})
		return
	}

	changes, err := h.history.List(r.Context(), s.ID, limit)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("station_id", s.ID).
			Msg("failed to list availability history")
		response.InternalError(w, r, "failed to load availability history")
		return
	}
	if changes == nil {
		changes = []station.AvailabilityChange{}
	}

	response.JSON(w, r, http.StatusOK, models.HistoryResponse{
		StationID: s.ID,
		Limit:     limit,
		Changes:   changes,
	})
}

// csvHeader lists the ML dataset columns in export order.
var csvHeader = []string{
	"id", "name", "latitude", "longitude", "address", "operator",
	"connector_type", "power_kw", "price_per_kwh", "available_slots", "total_slots",
	"is_available", "last_updated", "utilization_rate", "is_peak_hours", "day_of_week", "hour_of_day",
}

// ExportCSV handles GET /v1/export/ml.csv - the ML dataset as a CSV download.
func (h *StationHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	records := features.ExtractAll(h.stations.Snapshot(), now)

	response.Attachment(w, r, "text/csv; charset=utf-8", "ev_charging_ml_data_"+now.Format("20060102_1504")+".csv")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, rec := range records {
		_ = cw.Write(csvRow(rec))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("ml export interrupted")
	}
}

func csvRow(rec features.Record) []string {
	s := rec.Station
	return []string{
		s.ID,
		s.Name,
		formatFloat(s.Coordinates.Lat),
		formatFloat(s.Coordinates.Lng),
		s.Address,
		s.Operator,
		string(s.ConnectorType),
		formatFloat(s.PowerKw),
		formatFloat(s.PricePerKwh),
		strconv.Itoa(s.AvailableSlots),
		strconv.Itoa(s.TotalSlots),
		strconv.FormatBool(s.IsAvailable()),
		s.LastUpdated.UTC().Format(time.RFC3339),
		formatFloat(rec.UtilizationRate),
		strconv.FormatBool(rec.IsPeakHour),
		strconv.Itoa(rec.DayOfWeek),
		strconv.Itoa(rec.HourOfDay),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (h *StationHandler) lookup(w http.ResponseWriter, r *http.Request) (station.Station, bool) {
	id := chi.URLParam(r, "stationId")
	if id == "" {
		response.BadRequest(w, r, "stationId is required", nil)
		return station.Station{}, false
	}

	s, err := h.stations.Get(id)
	if errors.Is(err, station.ErrNotFound) {
		response.NotFound(w, r, "station "+id+" not found")
		return station.Station{}, false
	}
	if err != nil {
		response.InternalError(w, r, "failed to load station")
		return station.Station{}, false
	}
	return s, true
}
