// Package config loads service configuration from an optional YAML file
// (CONFIG_FILE) overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/drivepulse/drivepulse/internal/database"
)

// ConfigFileEnv names the environment variable holding the YAML path.
const ConfigFileEnv = "CONFIG_FILE"

// History backends.
const (
	HistoryBackendMemory   = "memory"
	HistoryBackendPostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	Port               string   `yaml:"port"`
	Environment        string   `yaml:"environment"`
	LogLevel           string   `yaml:"log_level"`
	StationsFile       string   `yaml:"stations_file"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	Simulator SimulatorConfig `yaml:"simulator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
	Database  database.Config `yaml:"database"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// SimulatorConfig controls the availability simulator.
type SimulatorConfig struct {
	Interval          time.Duration `yaml:"interval"`
	ChangeProbability float64       `yaml:"change_probability"`
	// Seed fixes the random source; 0 seeds from the clock.
	Seed uint64 `yaml:"seed"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// HistoryConfig selects where availability history is stored.
type HistoryConfig struct {
	Backend  string `yaml:"backend"`
	Capacity int    `yaml:"capacity"`
}

// PubSubConfig configures the availability event bus. An empty Topic
// disables publishing.
type PubSubConfig struct {
	ProjectID    string `yaml:"project_id"`
	Topic        string `yaml:"topic"`
	Subscription string `yaml:"subscription"`
}

// Enabled reports whether events are published to Pub/Sub.
func (c PubSubConfig) Enabled() bool {
	return c.Topic != ""
}

// MQTTConfig configures the broker fan-out. An empty BrokerURL disables it.
type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Retained    bool   `yaml:"retained"`
}

// Enabled reports whether events are published over MQTT.
func (c MQTTConfig) Enabled() bool {
	return c.BrokerURL != ""
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:        "8080",
		Environment: "development",
		LogLevel:    "info",
		Simulator: SimulatorConfig{
			Interval:          30 * time.Second,
			ChangeProbability: 0.3,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
		History: HistoryConfig{
			Backend:  HistoryBackendMemory,
			Capacity: 100,
		},
		Database: database.DefaultConfig(),
		MQTT: MQTTConfig{
			ClientID:    "drivepulse-api",
			TopicPrefix: "drivepulse/stations",
			Retained:    true,
		},
	}
}

// Load builds the configuration from defaults, the CONFIG_FILE YAML file if
// set, and environment variables, in that order, then validates it.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(ConfigFileEnv); ok && path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	if v, ok := r.lookup(key); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("config: parse %s: %w", key, err))
			return
		}
		*dst = parsed
	}
}

func (r *envReader) integer(key string, dst *int) {
	if v, ok := r.lookup(key); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("config: parse %s: %w", key, err))
			return
		}
		*dst = parsed
	}
}

func (r *envReader) unsigned(key string, dst *uint64) {
	if v, ok := r.lookup(key); ok && v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("config: parse %s: %w", key, err))
			return
		}
		*dst = parsed
	}
}

func (r *envReader) float(key string, dst *float64) {
	if v, ok := r.lookup(key); ok && v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("config: parse %s: %w", key, err))
			return
		}
		*dst = parsed
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.lookup(key); ok && v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("config: parse %s: %w", key, err))
			return
		}
		*dst = parsed
	}
}

func (r *envReader) list(key string, dst *[]string) {
	if v, ok := r.lookup(key); ok && v != "" {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	r := &envReader{lookup: lookup}

	r.str("APP_PORT", &cfg.Port)
	r.str("APP_ENV", &cfg.Environment)
	r.str("LOG_LEVEL", &cfg.LogLevel)
	r.str("STATIONS_FILE", &cfg.StationsFile)
	r.list("CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)

	r.duration("SIMULATOR_INTERVAL", &cfg.Simulator.Interval)
	r.float("SIMULATOR_CHANGE_PROBABILITY", &cfg.Simulator.ChangeProbability)
	r.unsigned("SIMULATOR_SEED", &cfg.Simulator.Seed)

	r.boolean("OTEL_ENABLED", &cfg.Telemetry.Enabled)
	r.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	r.str("HISTORY_BACKEND", &cfg.History.Backend)
	r.integer("HISTORY_CAPACITY", &cfg.History.Capacity)

	r.str("DB_HOST", &cfg.Database.Host)
	r.integer("DB_PORT", &cfg.Database.Port)
	r.str("DB_USER", &cfg.Database.User)
	r.str("DB_PASSWORD", &cfg.Database.Password)
	r.str("DB_NAME", &cfg.Database.Database)
	r.str("DB_SSL_MODE", &cfg.Database.SSLMode)
	r.integer("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	r.integer("DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	r.duration("DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)

	r.str("PUBSUB_PROJECT_ID", &cfg.PubSub.ProjectID)
	r.str("PUBSUB_TOPIC", &cfg.PubSub.Topic)
	r.str("PUBSUB_SUBSCRIPTION", &cfg.PubSub.Subscription)

	r.str("MQTT_BROKER_URL", &cfg.MQTT.BrokerURL)
	r.str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	r.str("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	r.boolean("MQTT_RETAINED", &cfg.MQTT.Retained)

	return errors.Join(r.errs...)
}

// Validate checks every field and returns all problems at once.
func (c Config) Validate() error {
	var errs []error
	add := func(key, format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("config: %s: %s", key, fmt.Sprintf(format, args...)))
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		add("APP_PORT", "must be a port number, got %q", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		add("LOG_LEVEL", "unknown level %q", c.LogLevel)
	}
	if c.Simulator.Interval <= 0 {
		add("SIMULATOR_INTERVAL", "must be positive, got %s", c.Simulator.Interval)
	}
	if p := c.Simulator.ChangeProbability; p < 0 || p > 1 {
		add("SIMULATOR_CHANGE_PROBABILITY", "must be within [0, 1], got %v", p)
	}

	switch c.History.Backend {
	case HistoryBackendMemory, HistoryBackendPostgres:
	default:
		add("HISTORY_BACKEND", "must be %q or %q, got %q", HistoryBackendMemory, HistoryBackendPostgres, c.History.Backend)
	}
	if c.History.Capacity < 0 {
		add("HISTORY_CAPACITY", "must not be negative")
	}

	if c.PubSub.Enabled() && c.PubSub.ProjectID == "" {
		add("PUBSUB_PROJECT_ID", "required when PUBSUB_TOPIC is set")
	}

	if c.MQTT.Enabled() {
		u, err := url.Parse(c.MQTT.BrokerURL)
		if err != nil || u.Host == "" {
			add("MQTT_BROKER_URL", "invalid broker url %q", c.MQTT.BrokerURL)
		} else {
			switch u.Scheme {
			case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
			default:
				add("MQTT_BROKER_URL", "unsupported scheme %q", u.Scheme)
			}
		}
		if c.MQTT.ClientID == "" {
			add("MQTT_CLIENT_ID", "required when MQTT_BROKER_URL is set")
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
