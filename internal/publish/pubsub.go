package publish

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/resilience"
	"github.com/drivepulse/drivepulse/internal/station"
)

// MessagePublisher sends a single message and waits for the server ack.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) error
}

// PubSubConfig holds configuration for the Pub/Sub sink.
type PubSubConfig struct {
	ProjectID string
	TopicID   string
	Executor  *resilience.Executor
	Logger    zerolog.Logger
}

// PubSubPublisher publishes availability changes to a Pub/Sub topic.
type PubSubPublisher struct {
	topic    string
	sender   MessagePublisher
	executor *resilience.Executor
	logger   zerolog.Logger
	close    func() error
}

// NewPubSubPublisher connects to Pub/Sub and returns a publisher for cfg.TopicID.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, errors.New("pubsub project and topic are required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := client.Publisher(cfg.TopicID)

	p := NewPubSubSink(cfg.TopicID, &topicPublisher{publisher: publisher}, cfg.Executor, cfg.Logger)
	p.close = func() error {
		publisher.Stop()
		return client.Close()
	}
	return p, nil
}

// NewPubSubSink builds a publisher over an existing sender.
func NewPubSubSink(topic string, sender MessagePublisher, exec *resilience.Executor, logger zerolog.Logger) *PubSubPublisher {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultExecutorConfig("pubsub"))
	}
	return &PubSubPublisher{
		topic:    topic,
		sender:   sender,
		executor: exec,
		logger:   logger,
	}
}

// Name implements simulator.Sink.
func (p *PubSubPublisher) Name() string {
	return "pubsub"
}

// Publish sends one message per change. Every change is attempted; the
// returned error joins the failures.
func (p *PubSubPublisher) Publish(ctx context.Context, changes []station.AvailabilityChange) error {
	var errs []error
	for _, change := range changes {
		data, err := Encode(change)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		msg := &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"station_id": change.StationID,
				"event_type": EventTypeAvailabilityChanged,
			},
		}

		err = p.executor.Do(ctx, func(ctx context.Context) error {
			return p.sender.Publish(ctx, msg)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publishing %s to %s: %w", change.StationID, p.topic, err))
		}
	}

	if len(errs) == 0 {
		p.logger.Debug().
			Str("topic", p.topic).
			Int("messages", len(changes)).
			Msg("published availability changes")
	}
	return errors.Join(errs...)
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

type topicPublisher struct {
	publisher *pubsub.Publisher
}

func (t *topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) error {
	_, err := t.publisher.Publish(ctx, msg).Get(ctx)
	return err
}
