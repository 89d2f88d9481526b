// Package worker consumes availability events from Pub/Sub and records them
// in the history store.
package worker

import (
	"time"
)

// ConsumerConfig holds configuration for the availability consumer.
type ConsumerConfig struct {
	// ProjectID is the Google Cloud project of the subscription.
	ProjectID string

	// SubscriptionName is the Pub/Sub subscription to receive from.
	SubscriptionName string

	// MaxOutstandingMessages bounds in-flight messages.
	// Default: 10
	MaxOutstandingMessages int

	// MaxExtension is how long a message lease may be extended.
	// Default: 10 minutes
	MaxExtension time.Duration

	// HandleTimeout bounds the history write for one message.
	// Default: 30 seconds
	HandleTimeout time.Duration
}

// DefaultConsumerConfig returns the default consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MaxOutstandingMessages: 10,
		MaxExtension:           10 * time.Minute,
		HandleTimeout:          30 * time.Second,
	}
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	d := DefaultConsumerConfig()
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = d.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = d.HandleTimeout
	}
	return c
}
