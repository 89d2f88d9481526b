package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepulse/drivepulse/internal/history"
	"github.com/drivepulse/drivepulse/internal/publish"
	"github.com/drivepulse/drivepulse/internal/station"
	"github.com/drivepulse/drivepulse/internal/worker"
)

var attrs = map[string]string{
	"station_id": "PB003",
	"event_type": publish.EventTypeAvailabilityChanged,
}

func event(t *testing.T, change station.AvailabilityChange) []byte {
	t.Helper()
	data, err := publish.Encode(change)
	require.NoError(t, err)
	return data
}

func validChange() station.AvailabilityChange {
	return station.AvailabilityChange{
		EventID:        "8c7b2a9e-7a43-4d0c-9f4e-2f0a4b6f1c11",
		StationID:      "PB003",
		PreviousSlots:  0,
		AvailableSlots: 3,
		TotalSlots:     4,
		ChangedAt:      time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := worker.DefaultConsumerConfig()
	assert.Equal(t, 10, cfg.MaxOutstandingMessages)
	assert.Equal(t, 10*time.Minute, cfg.MaxExtension)
	assert.Equal(t, 30*time.Second, cfg.HandleTimeout)
}

func TestConsumer_RecordsEvent(t *testing.T) {
	repo := history.NewInMemoryRepository(0)
	consumer := worker.NewConsumer(repo, zerolog.Nop())

	require.NoError(t, consumer.Handle(context.Background(), event(t, validChange()), attrs))

	got, err := repo.List(context.Background(), "PB003", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].AvailableSlots)

	// Redelivery is idempotent.
	require.NoError(t, consumer.Handle(context.Background(), event(t, validChange()), attrs))
	got, err = repo.List(context.Background(), "PB003", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	m := consumer.GetMetrics()
	assert.Equal(t, int64(2), m.Received)
	assert.Equal(t, int64(2), m.Recorded)
	assert.False(t, m.LastMessageAt.IsZero())
}

func TestConsumer_Malformed(t *testing.T) {
	consumer := worker.NewConsumer(history.NewInMemoryRepository(0), zerolog.Nop())

	broken := validChange()
	broken.AvailableSlots = 7

	noID := validChange()
	noID.EventID = ""

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{")},
		{"missing station", []byte(`{"eventType":"station.availability_changed","change":{}}`)},
		{"slots above total", event(t, broken)},
		{"missing event id", event(t, noID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := consumer.Handle(context.Background(), tt.data, attrs)
			assert.ErrorIs(t, err, worker.ErrMalformed)
		})
	}

	assert.Equal(t, int64(4), consumer.GetMetrics().Malformed)
}

func TestConsumer_SkipsUnknownEventType(t *testing.T) {
	repo := history.NewInMemoryRepository(0)
	consumer := worker.NewConsumer(repo, zerolog.Nop())

	err := consumer.Handle(context.Background(), []byte("ignored"), map[string]string{"event_type": "station.deleted"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), consumer.GetMetrics().Skipped)
}

type unavailableRepo struct {
	history.Repository
}

func (unavailableRepo) Append(context.Context, []station.AvailabilityChange) error {
	return errors.New("connection refused")
}

func TestConsumer_RepositoryFailureIsRetryable(t *testing.T) {
	consumer := worker.NewConsumer(unavailableRepo{}, zerolog.Nop())

	err := consumer.Handle(context.Background(), event(t, validChange()), attrs)
	require.Error(t, err)
	assert.NotErrorIs(t, err, worker.ErrMalformed)

	snapshot := consumer.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["failed"])
	assert.Equal(t, int64(0), snapshot["recorded"])
}
