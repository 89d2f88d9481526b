package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/resilience"
	"github.com/drivepulse/drivepulse/internal/station"
)

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = errors.New("mqtt client not connected")

// MQTTConfig holds configuration for the MQTT sink.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string

	// QoS is the publish quality of service. Default: 1
	QoS byte

	// Retained keeps the last availability per station on the broker.
	Retained bool

	// PublishTimeout bounds the wait for a broker ack. Default: 5 seconds
	PublishTimeout time.Duration

	Executor *resilience.Executor
	Logger   zerolog.Logger
}

// MQTTPublisher publishes each change to <prefix>/<station_id>/availability.
type MQTTPublisher struct {
	client mqtt.Client
	config MQTTConfig
}

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	logger := cfg.Logger

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWriteTimeout(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetCleanSession(true)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", cfg.BrokerURL).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connecting to mqtt broker %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.BrokerURL, err)
	}
	return client, nil
}

// NewMQTTPublisher wraps a connected client.
func NewMQTTPublisher(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "drivepulse/stations"
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.Executor == nil {
		cfg.Executor = resilience.NewExecutor(resilience.DefaultExecutorConfig("mqtt"))
	}
	return &MQTTPublisher{client: client, config: cfg}
}

// Name implements simulator.Sink.
func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// Topic returns the topic a station's changes are published to.
func (p *MQTTPublisher) Topic(stationID string) string {
	return p.config.TopicPrefix + "/" + stationID + "/availability"
}

// Publish sends every change; failures are joined.
func (p *MQTTPublisher) Publish(ctx context.Context, changes []station.AvailabilityChange) error {
	var errs []error
	for _, change := range changes {
		payload, err := Encode(change)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		topic := p.Topic(change.StationID)
		err = p.config.Executor.Do(ctx, func(context.Context) error {
			return p.publishOne(topic, payload)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publishing to %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

func (p *MQTTPublisher) publishOne(topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, p.config.QoS, p.config.Retained, payload)
	if !token.WaitTimeout(p.config.PublishTimeout) {
		return fmt.Errorf("publish ack timeout after %s", p.config.PublishTimeout)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
