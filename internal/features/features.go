// Package features derives machine-learning oriented fields from station snapshots.
package features

import (
	"time"

	"github.com/drivepulse/drivepulse/internal/station"
)

// Record is a station snapshot enriched with derived features.
type Record struct {
	Station station.Station

	// UtilizationRate is the occupied share of slots, 1 - available/total.
	UtilizationRate float64

	// IsPeakHour is true between 07:00–10:59 and 17:00–20:59 local time.
	IsPeakHour bool

	// DayOfWeek follows the Monday=0 ... Sunday=6 convention.
	DayOfWeek int

	HourOfDay int
}

// Extract computes the feature record of a single station at time now.
func Extract(s station.Station, now time.Time) Record {
	return Record{
		Station:         s,
		UtilizationRate: UtilizationRate(s),
		IsPeakHour:      IsPeakHour(now),
		DayOfWeek:       DayOfWeek(now),
		HourOfDay:       now.Hour(),
	}
}

// ExtractAll computes feature records for every station, preserving order.
func ExtractAll(stations []station.Station, now time.Time) []Record {
	records := make([]Record, len(stations))
	for i, s := range stations {
		records[i] = Extract(s, now)
	}
	return records
}

// UtilizationRate returns 1 - available/total. TotalSlots is at least one by
// registry invariant.
func UtilizationRate(s station.Station) float64 {
	return 1 - float64(s.AvailableSlots)/float64(s.TotalSlots)
}

// IsPeakHour reports whether the hour of t falls in [7,10] or [17,20].
func IsPeakHour(t time.Time) bool {
	h := t.Hour()
	return (h >= 7 && h <= 10) || (h >= 17 && h <= 20)
}

// DayOfWeek returns the weekday with Monday as 0.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
