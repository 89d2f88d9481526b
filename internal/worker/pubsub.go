package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler receives availability events from a subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	consumer         *Consumer
	handleTimeout    time.Duration
	logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg ConsumerConfig, consumer *Consumer, logger zerolog.Logger) (*PubSubHandler, error) {
	cfg = cfg.withDefaults()
	if cfg.ProjectID == "" || cfg.SubscriptionName == "" {
		return nil, errors.New("pubsub project and subscription are required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		consumer:         consumer,
		handleTimeout:    cfg.HandleTimeout,
		logger:           logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("station_id", msg.Attributes["station_id"]).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, h.handleTimeout)
	defer cancel()

	err := h.consumer.Handle(ctx, msg.Data, msg.Attributes)
	switch {
	case err == nil:
		logger.Debug().Dur("duration", time.Since(startTime)).Msg("availability event recorded")
		msg.Ack()
	case errors.Is(err, ErrMalformed):
		logger.Error().Err(err).Msg("dropping malformed message")
		msg.Ack() // Ack so the message is not redelivered
	default:
		logger.Error().Err(err).Msg("failed to record availability event")
		msg.Nack()
	}
}
