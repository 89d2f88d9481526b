package history

import (
	"context"
	"sync"

	"github.com/drivepulse/drivepulse/internal/station"
)

// DefaultCapacity is the number of changes kept per station in memory.
const DefaultCapacity = 100

// InMemoryRepository keeps a bounded ring of changes per station.
type InMemoryRepository struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string][]station.AvailabilityChange
	seen     map[string]struct{}
	order    []string // event IDs in insertion order, for pruning seen
}

// NewInMemoryRepository creates a repository holding up to capacity changes
// per station. A non-positive capacity uses DefaultCapacity.
func NewInMemoryRepository(capacity int) *InMemoryRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InMemoryRepository{
		capacity: capacity,
		rings:    make(map[string][]station.AvailabilityChange),
		seen:     make(map[string]struct{}),
	}
}

// Append stores changes, evicting the oldest entries of a full station ring.
func (r *InMemoryRepository) Append(_ context.Context, changes []station.AvailabilityChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range changes {
		if c.EventID != "" {
			if _, dup := r.seen[c.EventID]; dup {
				continue
			}
			r.seen[c.EventID] = struct{}{}
			r.order = append(r.order, c.EventID)
		}

		ring := append(r.rings[c.StationID], c)
		if len(ring) > r.capacity {
			ring = ring[len(ring)-r.capacity:]
		}
		r.rings[c.StationID] = ring
	}

	r.pruneSeen()
	return nil
}

// pruneSeen bounds the dedup set to the total ring capacity.
func (r *InMemoryRepository) pruneSeen() {
	limit := r.capacity * (len(r.rings) + 1)
	if len(r.order) <= limit {
		return
	}
	drop := len(r.order) - limit
	for _, id := range r.order[:drop] {
		delete(r.seen, id)
	}
	r.order = append([]string(nil), r.order[drop:]...)
}

// List returns up to limit changes for stationID, newest first.
func (r *InMemoryRepository) List(_ context.Context, stationID string, limit int) ([]station.AvailabilityChange, error) {
	limit, err := NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ring := r.rings[stationID]
	n := len(ring)
	if n > limit {
		n = limit
	}

	out := make([]station.AvailabilityChange, 0, n)
	for i := len(ring) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, ring[i])
	}
	return out, nil
}
