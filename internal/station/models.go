// Package station owns the charging station registry: the seed data the fleet
// is generated from, the station records themselves and the lock that keeps
// availability updates atomic with respect to readers.
package station

import (
	"errors"
	"fmt"
	"time"

	"github.com/drivepulse/drivepulse/internal/geo"
)

// Registry errors.
var (
	ErrNotFound  = errors.New("station not found")
	ErrInvariant = errors.New("station invariant violated")
	ErrDuplicate = errors.New("duplicate station id")
)

// ConnectorType is the plug standard a station offers.
type ConnectorType string

const (
	ConnectorType2       ConnectorType = "Type2"
	ConnectorCCS         ConnectorType = "CCS"
	ConnectorCHAdeMO     ConnectorType = "CHAdeMO"
	ConnectorBharatDC001 ConnectorType = "Bharat DC-001"
)

// ConnectorTypes returns every supported connector type in a stable order.
func ConnectorTypes() []ConnectorType {
	return []ConnectorType{ConnectorType2, ConnectorCCS, ConnectorCHAdeMO, ConnectorBharatDC001}
}

// Valid reports whether c is one of the supported connector types.
func (c ConnectorType) Valid() bool {
	for _, ct := range ConnectorTypes() {
		if c == ct {
			return true
		}
	}
	return false
}

// Operators are the charging network operators stations are assigned to.
func Operators() []string {
	return []string{"Tata Power", "BSES", "Fortum", "Magenta", "EVRE"}
}

// PowerRatingsKw are the charger power ratings stations are drawn from.
func PowerRatingsKw() []float64 {
	return []float64{7.4, 15, 30, 50, 120}
}

// Generation bounds.
const (
	DefaultTotalSlots = 4
	MinPricePerKwh    = 12.5
	MaxPricePerKwh    = 18.5
)

// Station is a charging station record.
type Station struct {
	// ID is stable for the lifetime of the process, e.g. "PB001".
	ID       string
	Name     string
	Address  string
	Operator string

	Coordinates   geo.Coordinates
	ConnectorType ConnectorType

	// PowerKw, PricePerKwh and TotalSlots are fixed at creation.
	PowerKw     float64
	PricePerKwh float64
	TotalSlots  int

	// AvailableSlots is always within [0, TotalSlots].
	AvailableSlots int

	// LastUpdated is the time of the latest availability mutation.
	LastUpdated time.Time
}

// IsAvailable reports whether at least one slot is free. It is derived from
// AvailableSlots and never stored.
func (s Station) IsAvailable() bool {
	return s.AvailableSlots > 0
}

// Validate checks the static and availability invariants of a station.
func (s Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvariant)
	}
	if _, err := geo.Validate(s.Coordinates.Lat, s.Coordinates.Lng); err != nil {
		return fmt.Errorf("station %s: %w", s.ID, err)
	}
	if !s.ConnectorType.Valid() {
		return fmt.Errorf("%w: station %s has unknown connector type %q", ErrInvariant, s.ID, s.ConnectorType)
	}
	if s.PowerKw <= 0 || s.PricePerKwh <= 0 {
		return fmt.Errorf("%w: station %s must have positive power and price", ErrInvariant, s.ID)
	}
	if s.TotalSlots < 1 {
		return fmt.Errorf("%w: station %s must have at least one slot", ErrInvariant, s.ID)
	}
	if s.AvailableSlots < 0 || s.AvailableSlots > s.TotalSlots {
		return &InvariantError{StationID: s.ID, AvailableSlots: s.AvailableSlots, TotalSlots: s.TotalSlots}
	}
	return nil
}

// InvariantError is returned when an availability update would leave
// AvailableSlots outside [0, TotalSlots].
type InvariantError struct {
	StationID      string
	AvailableSlots int
	TotalSlots     int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("station %s: available slots %d outside [0, %d]", e.StationID, e.AvailableSlots, e.TotalSlots)
}

// Unwrap allows errors.Is(err, ErrInvariant).
func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// AvailabilityChange records a single applied availability mutation.
type AvailabilityChange struct {
	EventID        string    `json:"eventId"`
	StationID      string    `json:"stationId"`
	PreviousSlots  int       `json:"previousSlots"`
	AvailableSlots int       `json:"availableSlots"`
	TotalSlots     int       `json:"totalSlots"`
	ChangedAt      time.Time `json:"changedAt"`
}

// IsAvailable reports whether the station had free slots after the change.
func (c AvailabilityChange) IsAvailable() bool {
	return c.AvailableSlots > 0
}
