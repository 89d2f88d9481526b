package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/history"
	"github.com/drivepulse/drivepulse/internal/publish"
	"github.com/drivepulse/drivepulse/internal/station"
)

// ErrMalformed marks a message that can never be processed. Such messages are
// acked so they are not redelivered.
var ErrMalformed = errors.New("malformed availability event")

// Consumer turns availability events into history records.
type Consumer struct {
	repo    history.Repository
	logger  zerolog.Logger
	metrics *ConsumerMetrics
}

// ConsumerMetrics tracks consumer statistics.
type ConsumerMetrics struct {
	mu sync.RWMutex

	Received  int64
	Recorded  int64
	Skipped   int64
	Malformed int64
	Failed    int64

	LastMessageAt time.Time
}

// NewConsumer creates a consumer writing to repo.
func NewConsumer(repo history.Repository, logger zerolog.Logger) *Consumer {
	return &Consumer{
		repo:    repo,
		logger:  logger,
		metrics: &ConsumerMetrics{},
	}
}

// Handle processes one message body. Unknown event types are skipped.
// Errors wrapping ErrMalformed are permanent; all others are retryable.
func (c *Consumer) Handle(ctx context.Context, data []byte, attributes map[string]string) error {
	c.metrics.mu.Lock()
	c.metrics.Received++
	c.metrics.LastMessageAt = time.Now()
	c.metrics.mu.Unlock()

	if et := attributes["event_type"]; et != "" && et != publish.EventTypeAvailabilityChanged {
		c.count(func(m *ConsumerMetrics) { m.Skipped++ })
		c.logger.Warn().Str("event_type", et).Msg("skipping unknown event type")
		return nil
	}

	ev, err := publish.Decode(data)
	if err != nil {
		c.count(func(m *ConsumerMetrics) { m.Malformed++ })
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate(ev.Change); err != nil {
		c.count(func(m *ConsumerMetrics) { m.Malformed++ })
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := c.repo.Append(ctx, []station.AvailabilityChange{ev.Change}); err != nil {
		c.count(func(m *ConsumerMetrics) { m.Failed++ })
		return fmt.Errorf("recording %s: %w", ev.Change.StationID, err)
	}

	c.count(func(m *ConsumerMetrics) { m.Recorded++ })
	return nil
}

func validate(change station.AvailabilityChange) error {
	if change.EventID == "" {
		return errors.New("missing event id")
	}
	if change.AvailableSlots < 0 || change.AvailableSlots > change.TotalSlots {
		return &station.InvariantError{
			StationID:      change.StationID,
			AvailableSlots: change.AvailableSlots,
			TotalSlots:     change.TotalSlots,
		}
	}
	return nil
}

func (c *Consumer) count(fn func(*ConsumerMetrics)) {
	c.metrics.mu.Lock()
	fn(c.metrics)
	c.metrics.mu.Unlock()
}

// GetMetrics returns a copy of the current metrics.
func (c *Consumer) GetMetrics() ConsumerMetrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	return ConsumerMetrics{
		Received:      c.metrics.Received,
		Recorded:      c.metrics.Recorded,
		Skipped:       c.metrics.Skipped,
		Malformed:     c.metrics.Malformed,
		Failed:        c.metrics.Failed,
		LastMessageAt: c.metrics.LastMessageAt,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (c *Consumer) MetricsSnapshot() map[string]interface{} {
	m := c.GetMetrics()
	return map[string]interface{}{
		"received":        m.Received,
		"recorded":        m.Recorded,
		"skipped":         m.Skipped,
		"malformed":       m.Malformed,
		"failed":          m.Failed,
		"last_message_at": m.LastMessageAt,
	}
}
