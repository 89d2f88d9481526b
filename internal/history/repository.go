// Package history keeps an audit log of station availability changes.
package history

import (
	"context"
	"errors"

	"github.com/drivepulse/drivepulse/internal/station"
)

// Limits applied to List.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrInvalidLimit is returned when a list limit is out of range.
var ErrInvalidLimit = errors.New("limit must be between 1 and 500")

// Repository defines the interface for availability history persistence.
type Repository interface {
	// Append stores changes. Re-appending an event ID is a no-op.
	Append(ctx context.Context, changes []station.AvailabilityChange) error

	// List returns up to limit changes for a station, newest first.
	List(ctx context.Context, stationID string, limit int) ([]station.AvailabilityChange, error)
}

// NormalizeLimit applies DefaultLimit to zero and rejects values outside
// [1, MaxLimit].
func NormalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultLimit, nil
	}
	if limit < 0 || limit > MaxLimit {
		return 0, ErrInvalidLimit
	}
	return limit, nil
}
