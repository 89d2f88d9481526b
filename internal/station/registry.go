package station

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the single owner of the station set. Stations are created once
// and never added or removed; only availability mutates, under an exclusive lock.
type Registry struct {
	mu       sync.RWMutex
	stations []Station
	index    map[string]int
}

// NewRegistry creates a registry from a fixed station list. The list order
// is preserved and defines the scan order of queries.
func NewRegistry(stations []Station) (*Registry, error) {
	r := &Registry{
		stations: make([]Station, 0, len(stations)),
		index:    make(map[string]int, len(stations)),
	}

	for _, s := range stations {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.index[s.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, s.ID)
		}
		r.index[s.ID] = len(r.stations)
		r.stations = append(r.stations, s)
	}

	return r, nil
}

// Snapshot returns a point-in-time copy of every station in registry order.
// Later mutations never affect the returned slice.
func (r *Registry) Snapshot() []Station {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Station, len(r.stations))
	copy(out, r.stations)
	return out
}

// Get returns a copy of a single station.
func (r *Registry) Get(id string) (Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Station{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.stations[i], nil
}

// IDs returns the station ids in registry order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.stations))
	for i, s := range r.stations {
		ids[i] = s.ID
	}
	return ids
}

// Len returns the number of stations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}

// Mutate sets the available slot count of a station and stamps LastUpdated.
// LastUpdated never moves backwards: a now earlier than the current value is
// clamped to it.
func (r *Registry) Mutate(id string, availableSlots int, now time.Time) (AvailabilityChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return AvailabilityChange{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s := &r.stations[i]
	if availableSlots < 0 || availableSlots > s.TotalSlots {
		return AvailabilityChange{}, &InvariantError{
			StationID:      id,
			AvailableSlots: availableSlots,
			TotalSlots:     s.TotalSlots,
		}
	}

	if now.Before(s.LastUpdated) {
		now = s.LastUpdated
	}

	change := AvailabilityChange{
		EventID:        uuid.NewString(),
		StationID:      id,
		PreviousSlots:  s.AvailableSlots,
		AvailableSlots: availableSlots,
		TotalSlots:     s.TotalSlots,
		ChangedAt:      now,
	}

	s.AvailableSlots = availableSlots
	s.LastUpdated = now

	return change, nil
}
