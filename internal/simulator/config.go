// Package simulator emulates occupancy churn across the charging fleet by
// periodically reassigning station availability.
package simulator

import (
	"fmt"
	"time"
)

// Config holds the tuning knobs of the availability simulator.
type Config struct {
	// Interval between cycles.
	// Default: 30 seconds
	Interval time.Duration

	// ChangeProbability is the chance each station is reassigned in a cycle.
	// Zero freezes the fleet. Default: 0.3, applied only when the whole
	// Config is left unset.
	ChangeProbability float64

	// SinkTimeout bounds a single sink publish.
	// Default: 10 seconds
	SinkTimeout time.Duration
}

// DefaultConfig returns the default simulator configuration.
func DefaultConfig() Config {
	return Config{
		Interval:          30 * time.Second,
		ChangeProbability: 0.3,
		SinkTimeout:       10 * time.Second,
	}
}

// withDefaults returns DefaultConfig for an unset Config and otherwise fills
// the zero durations. ChangeProbability is kept as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c == (Config{}) {
		return def
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = def.SinkTimeout
	}
	return c
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.ChangeProbability < 0 || c.ChangeProbability > 1 {
		return fmt.Errorf("change probability %v outside [0, 1]", c.ChangeProbability)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval %v must not be negative", c.Interval)
	}
	return nil
}
