package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/drivepulse/drivepulse/internal/station"
)

const meterName = "github.com/drivepulse/drivepulse/internal/simulator"

// Registry is the subset of *station.Registry the simulator writes through.
type Registry interface {
	IDs() []string
	Get(id string) (station.Station, error)
	Mutate(id string, availableSlots int, now time.Time) (station.AvailabilityChange, error)
}

// RandomSource draws the per-station decisions. *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
	IntN(n int) int
}

// Sink receives the changes applied in a cycle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, changes []station.AvailabilityChange) error
}

// Options holds the dependencies of a Simulator.
type Options struct {
	Config   Config
	Registry Registry
	Rand     RandomSource
	Clock    func() time.Time
	Logger   zerolog.Logger
	Sinks    []Sink
}

// Simulator is the only writer of station availability.
type Simulator struct {
	config   Config
	registry Registry
	clock    func() time.Time
	logger   zerolog.Logger
	sinks    []Sink

	// rngMu serializes draws; math/rand sources are not safe for concurrent use.
	rngMu sync.Mutex
	rng   RandomSource

	metrics     *Metrics
	instruments *instruments
}

// Metrics tracks simulator statistics.
type Metrics struct {
	mu sync.RWMutex

	Cycles       int64
	Mutations    int64
	Failures     int64
	SinkFailures int64
	Panics       int64

	LastCycleAt       time.Time
	LastCycleDuration time.Duration
}

type instruments struct {
	cycles    metric.Int64Counter
	mutations metric.Int64Counter
	failures  metric.Int64Counter
}

// CycleResult describes one pass over the fleet.
type CycleResult struct {
	StartedAt    time.Time
	Duration     time.Duration
	Considered   int
	Changes      []station.AvailabilityChange
	Errors       []CycleError
	SinkFailures int
}

// CycleError records a station that could not be updated.
type CycleError struct {
	StationID string
	Err       error
}

// New creates a simulator. Registry and Rand are required.
func New(opts Options) (*Simulator, error) {
	if opts.Registry == nil {
		return nil, errors.New("simulator: registry is required")
	}
	if opts.Rand == nil {
		return nil, errors.New("simulator: random source is required")
	}

	cfg := opts.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	inst, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("simulator: create instruments: %w", err)
	}

	return &Simulator{
		config:      cfg,
		registry:    opts.Registry,
		clock:       clock,
		logger:      opts.Logger,
		sinks:       opts.Sinks,
		rng:         opts.Rand,
		metrics:     &Metrics{},
		instruments: inst,
	}, nil
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(meterName)

	cycles, err := meter.Int64Counter(
		"simulator.cycles",
		metric.WithDescription("Number of availability simulation cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	mutations, err := meter.Int64Counter(
		"simulator.mutations",
		metric.WithDescription("Number of station availability mutations applied"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"simulator.failures",
		metric.WithDescription("Number of failed mutations and sink publishes"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{cycles: cycles, mutations: mutations, failures: failures}, nil
}

// Run executes a cycle every Interval until ctx is cancelled. A failing or
// panicking cycle is logged and the loop continues.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Float64("change_probability", s.config.ChangeProbability).
		Int("sinks", len(s.sinks)).
		Msg("availability simulator started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("availability simulator stopped")
			return
		case <-ticker.C:
			s.safeCycle(ctx)
		}
	}
}

func (s *Simulator) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.mu.Lock()
			s.metrics.Panics++
			s.metrics.mu.Unlock()

			s.logger.Error().
				Interface("panic", r).
				Msg("availability cycle panicked")
		}
	}()
	s.RunCycle(ctx)
}

// RunCycle visits every station once, reassigning availability with
// probability ChangeProbability, then hands the applied changes to the sinks.
func (s *Simulator) RunCycle(ctx context.Context) *CycleResult {
	start := time.Now()
	result := &CycleResult{StartedAt: s.clock()}

	for _, id := range s.registry.IDs() {
		result.Considered++

		change, changed, err := s.step(id)
		if err != nil {
			result.Errors = append(result.Errors, CycleError{StationID: id, Err: err})
			s.logger.Error().
				Err(err).
				Str("station_id", id).
				Msg("availability update failed")
			continue
		}
		if changed {
			result.Changes = append(result.Changes, change)
		}
	}

	if len(result.Changes) > 0 {
		result.SinkFailures = s.publish(ctx, result.Changes)
	}

	result.Duration = time.Since(start)
	s.record(ctx, result)

	s.logger.Debug().
		Int("considered", result.Considered).
		Int("changed", len(result.Changes)).
		Int("failed", len(result.Errors)).
		Int("sink_failures", result.SinkFailures).
		Dur("duration", result.Duration).
		Msg("availability cycle completed")

	return result
}

// step decides whether a station changes and applies the new slot count.
func (s *Simulator) step(id string) (station.AvailabilityChange, bool, error) {
	st, err := s.registry.Get(id)
	if err != nil {
		return station.AvailabilityChange{}, false, err
	}

	s.rngMu.Lock()
	selected := s.rng.Float64() < s.config.ChangeProbability
	slots := 0
	if selected {
		slots = s.rng.IntN(st.TotalSlots + 1)
	}
	s.rngMu.Unlock()

	if !selected {
		return station.AvailabilityChange{}, false, nil
	}

	change, err := s.registry.Mutate(id, slots, s.clock())
	if err != nil {
		return station.AvailabilityChange{}, false, err
	}
	return change, true, nil
}

// publish sends changes to every sink, isolating failures per sink.
func (s *Simulator) publish(ctx context.Context, changes []station.AvailabilityChange) int {
	failures := 0
	for _, sink := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, s.config.SinkTimeout)
		err := sink.Publish(sinkCtx, changes)
		cancel()

		if err != nil {
			failures++
			s.logger.Error().
				Err(err).
				Str("sink", sink.Name()).
				Int("changes", len(changes)).
				Msg("failed to publish availability changes")
		}
	}
	return failures
}

func (s *Simulator) record(ctx context.Context, result *CycleResult) {
	s.metrics.mu.Lock()
	s.metrics.Cycles++
	s.metrics.Mutations += int64(len(result.Changes))
	s.metrics.Failures += int64(len(result.Errors))
	s.metrics.SinkFailures += int64(result.SinkFailures)
	s.metrics.LastCycleAt = result.StartedAt
	s.metrics.LastCycleDuration = result.Duration
	s.metrics.mu.Unlock()

	s.instruments.cycles.Add(ctx, 1)
	s.instruments.mutations.Add(ctx, int64(len(result.Changes)))
	if n := len(result.Errors); n > 0 {
		s.instruments.failures.Add(ctx, int64(n), metric.WithAttributes(attribute.String("stage", "mutate")))
	}
	if result.SinkFailures > 0 {
		s.instruments.failures.Add(ctx, int64(result.SinkFailures), metric.WithAttributes(attribute.String("stage", "sink")))
	}
}

// GetMetrics returns a copy of the current metrics.
func (s *Simulator) GetMetrics() Metrics {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return Metrics{
		Cycles:            s.metrics.Cycles,
		Mutations:         s.metrics.Mutations,
		Failures:          s.metrics.Failures,
		SinkFailures:      s.metrics.SinkFailures,
		Panics:            s.metrics.Panics,
		LastCycleAt:       s.metrics.LastCycleAt,
		LastCycleDuration: s.metrics.LastCycleDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map for status endpoints.
func (s *Simulator) MetricsSnapshot() map[string]interface{} {
	m := s.GetMetrics()
	return map[string]interface{}{
		"cycles":              m.Cycles,
		"mutations":           m.Mutations,
		"failures":            m.Failures,
		"sink_failures":       m.SinkFailures,
		"panics":              m.Panics,
		"last_cycle_at":       m.LastCycleAt,
		"last_cycle_duration": m.LastCycleDuration.String(),
		"interval":            s.config.Interval.String(),
		"change_probability":  s.config.ChangeProbability,
	}
}
