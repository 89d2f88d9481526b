package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drivepulse/drivepulse/internal/station"
)

const schema = `
	CREATE TABLE IF NOT EXISTS station_availability_history (
		event_id        UUID PRIMARY KEY,
		station_id      TEXT NOT NULL,
		previous_slots  SMALLINT NOT NULL,
		available_slots SMALLINT NOT NULL,
		total_slots     SMALLINT NOT NULL,
		changed_at      TIMESTAMPTZ NOT NULL,
		recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS station_availability_history_station_changed_idx
		ON station_availability_history (station_id, changed_at DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the history table and index if missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// Append inserts changes in one batch. Duplicate event IDs are ignored so
// redelivered messages are harmless.
func (r *PostgresRepository) Append(ctx context.Context, changes []station.AvailabilityChange) error {
	if len(changes) == 0 {
		return nil
	}

	query := `
		INSERT INTO station_availability_history
			(event_id, station_id, previous_slots, available_slots, total_slots, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(query, c.EventID, c.StationID, c.PreviousSlots, c.AvailableSlots, c.TotalSlots, c.ChangedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, c := range changes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert history event %s: %w", c.EventID, err)
		}
	}
	return nil
}

// List returns up to limit changes for stationID, newest first.
func (r *PostgresRepository) List(ctx context.Context, stationID string, limit int) ([]station.AvailabilityChange, error) {
	limit, err := NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT event_id::text, station_id, previous_slots, available_slots, total_slots, changed_at
		FROM station_availability_history
		WHERE station_id = $1
		ORDER BY changed_at DESC, recorded_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []station.AvailabilityChange
	for rows.Next() {
		var c station.AvailabilityChange
		var prev, avail, total int16
		if err := rows.Scan(&c.EventID, &c.StationID, &prev, &avail, &total, &c.ChangedAt); err != nil {
			return nil, err
		}
		c.PreviousSlots = int(prev)
		c.AvailableSlots = int(avail)
		c.TotalSlots = int(total)
		changes = append(changes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
