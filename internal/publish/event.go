// Package publish fans availability changes out to external transports.
package publish

import (
	"encoding/json"
	"fmt"

	"github.com/drivepulse/drivepulse/internal/station"
)

// EventTypeAvailabilityChanged is the event_type attribute of every change.
const EventTypeAvailabilityChanged = "station.availability_changed"

// Event is the wire form of an availability change.
type Event struct {
	EventType string                     `json:"eventType"`
	Change    station.AvailabilityChange `json:"change"`
	Available bool                       `json:"isAvailable"`
}

// NewEvent wraps a change for publishing.
func NewEvent(change station.AvailabilityChange) Event {
	return Event{
		EventType: EventTypeAvailabilityChanged,
		Change:    change,
		Available: change.IsAvailable(),
	}
}

// Encode marshals change as an Event.
func Encode(change station.AvailabilityChange) ([]byte, error) {
	data, err := json.Marshal(NewEvent(change))
	if err != nil {
		return nil, fmt.Errorf("encoding availability change for %s: %w", change.StationID, err)
	}
	return data, nil
}

// Decode parses an Event produced by Encode.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding availability event: %w", err)
	}
	if ev.Change.StationID == "" {
		return Event{}, fmt.Errorf("decoding availability event: missing station id")
	}
	return ev, nil
}
