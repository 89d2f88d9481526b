// Package handler provides HTTP handlers for the DrivePulse API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/drivepulse/drivepulse/internal/api/models"
	"github.com/drivepulse/drivepulse/internal/api/response"
	"github.com/drivepulse/drivepulse/internal/resilience"
	"github.com/drivepulse/drivepulse/internal/simulator"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SimulatorStatus exposes the availability simulator's counters.
type SimulatorStatus interface {
	GetMetrics() simulator.Metrics
	MetricsSnapshot() map[string]interface{}
}

// ClientCounter reports connected live-stream clients.
type ClientCounter interface {
	ClientCount() int
}

// OpsConfig holds the dependencies of the operational endpoints. Every field
// is optional.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Stations reports the registry size.
	Stations interface{ Len() int }

	Simulator SimulatorStatus

	// SimulatorInterval is the expected cycle period; a simulator that has
	// not completed a cycle within three intervals is reported degraded.
	SimulatorInterval time.Duration

	Stream ClientCounter

	// Resilience tracks the circuit breakers wrapping each sink.
	Resilience *resilience.Registry

	// Dependencies are pinged by the readiness probe, keyed by name.
	Dependencies map[string]Pinger

	// PingTimeout bounds each readiness ping. Default: 2 seconds
	PingTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - pings every dependency and
// returns 503 when one of them fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.pingDependencies(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status == models.HealthStatusFail {
			health.Status = models.HealthStatusFail
		}
	}
	if len(details) > 0 {
		health.Details = details
	}

	status := http.StatusOK
	if health.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and sink status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	subsystems := []models.SubsystemStatus{}
	if h.cfg.Stations != nil {
		detail := fmt.Sprintf("%d stations", h.cfg.Stations.Len())
		subsystems = append(subsystems, models.SubsystemStatus{Name: "station-registry", Status: models.HealthStatusOK, Detail: &detail})
	}
	if h.cfg.Simulator != nil {
		subsystems = append(subsystems, h.simulatorStatus(now))
	}
	if h.cfg.Stream != nil {
		detail := fmt.Sprintf("%d clients", h.cfg.Stream.ClientCount())
		subsystems = append(subsystems, models.SubsystemStatus{Name: "live-stream", Status: models.HealthStatusOK, Detail: &detail})
	}
	subsystems = append(subsystems, h.pingDependencies(r.Context())...)

	sinks := h.sinkStatuses()

	status := models.SystemStatus{
		Status:     overallStatus(subsystems, sinks),
		Time:       models.Timestamp(now),
		Subsystems: subsystems,
		Sinks:      sinks,
	}
	if h.cfg.Simulator != nil {
		status.Simulator = h.cfg.Simulator.MetricsSnapshot()
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) simulatorStatus(now time.Time) models.SubsystemStatus {
	m := h.cfg.Simulator.GetMetrics()
	s := models.SubsystemStatus{Name: "availability-simulator", Status: models.HealthStatusOK}

	if m.LastCycleAt.IsZero() {
		detail := "waiting for first cycle"
		s.Detail = &detail
		return s
	}

	detail := fmt.Sprintf("%d cycles, last at %s", m.Cycles, m.LastCycleAt.UTC().Format(time.RFC3339))
	s.Detail = &detail
	if h.cfg.SimulatorInterval > 0 && now.Sub(m.LastCycleAt) > 3*h.cfg.SimulatorInterval {
		s.Status = models.HealthStatusDegraded
	}
	return s
}

func (h *OpsHandler) pingDependencies(ctx context.Context) []models.SubsystemStatus {
	names := make([]string, 0, len(h.cfg.Dependencies))
	for name := range h.cfg.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]models.SubsystemStatus, 0, len(names))
	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)
		err := h.cfg.Dependencies[name].Ping(pingCtx)
		cancel()

		s := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		statuses = append(statuses, s)
	}
	return statuses
}

func (h *OpsHandler) sinkStatuses() []models.SinkStatus {
	if h.cfg.Resilience == nil {
		return []models.SinkStatus{}
	}

	all := h.cfg.Resilience.GetAllHealth()
	sinks := make([]models.SinkStatus, 0, len(all))
	for _, health := range all {
		s := models.SinkStatus{
			Sink:         health.Name,
			Status:       breakerStatus(health.CircuitState),
			CircuitState: health.CircuitState.String(),
		}
		if health.LastSuccessAt != nil {
			ts := models.Timestamp(*health.LastSuccessAt)
			s.LastSuccessAt = &ts
		}
		if health.LastFailureAt != nil {
			ts := models.Timestamp(*health.LastFailureAt)
			s.LastFailureAt = &ts
		}
		if health.LastError != "" {
			msg := health.LastError
			s.Message = &msg
		}
		sinks = append(sinks, s)
	}
	return sinks
}

func breakerStatus(state gobreaker.State) models.HealthStatus {
	switch state {
	case gobreaker.StateOpen:
		return models.HealthStatusFail
	case gobreaker.StateHalfOpen:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// overallStatus fails only when a subsystem fails; a failing sink degrades
// the service since queries keep working without it.
func overallStatus(subsystems []models.SubsystemStatus, sinks []models.SinkStatus) models.HealthStatus {
	status := models.HealthStatusOK
	for _, s := range subsystems {
		switch s.Status {
		case models.HealthStatusFail:
			return models.HealthStatusFail
		case models.HealthStatusDegraded:
			status = models.HealthStatusDegraded
		}
	}
	for _, s := range sinks {
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}
	return status
}
