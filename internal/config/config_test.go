package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepulse/drivepulse/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Simulator.Interval)
	assert.Equal(t, 0.3, cfg.Simulator.ChangeProbability)
	assert.Equal(t, config.HistoryBackendMemory, cfg.History.Backend)
	assert.False(t, cfg.PubSub.Enabled())
	assert.False(t, cfg.MQTT.Enabled())
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SIMULATOR_INTERVAL", "5s")
	t.Setenv("SIMULATOR_CHANGE_PROBABILITY", "0.75")
	t.Setenv("SIMULATOR_SEED", "42")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("HISTORY_BACKEND", "postgres")
	t.Setenv("DB_NAME", "history")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("PUBSUB_PROJECT_ID", "ev-project")
	t.Setenv("PUBSUB_TOPIC", "availability")
	t.Setenv("MQTT_BROKER_URL", "tcp://broker:1883")
	t.Setenv("MQTT_RETAINED", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, 5*time.Second, cfg.Simulator.Interval)
	assert.Equal(t, 0.75, cfg.Simulator.ChangeProbability)
	assert.Equal(t, uint64(42), cfg.Simulator.Seed)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, config.HistoryBackendPostgres, cfg.History.Backend)
	assert.Equal(t, "history", cfg.Database.Database)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.PubSub.Enabled())
	assert.True(t, cfg.MQTT.Enabled())
	assert.False(t, cfg.MQTT.Retained)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivepulse.yaml")
	yaml := `
port: "7000"
log_level: warn
stations_file: /etc/drivepulse/stations.yaml
simulator:
  interval: 10s
  change_probability: 0.5
history:
  capacity: 20
database:
  host: db.internal
mqtt:
  topic_prefix: fleet/punjab
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "7001")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Port, "env wins over file")
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())
	assert.Equal(t, "/etc/drivepulse/stations.yaml", cfg.StationsFile)
	assert.Equal(t, 10*time.Second, cfg.Simulator.Interval)
	assert.Equal(t, 0.5, cfg.Simulator.ChangeProbability)
	assert.Equal(t, 20, cfg.History.Capacity)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port, "unset file keys keep defaults")
	assert.Equal(t, "fleet/punjab", cfg.MQTT.TopicPrefix)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{"unparsable duration", map[string]string{"SIMULATOR_INTERVAL": "soon"}, "SIMULATOR_INTERVAL"},
		{"unparsable float", map[string]string{"SIMULATOR_CHANGE_PROBABILITY": "high"}, "SIMULATOR_CHANGE_PROBABILITY"},
		{"probability out of range", map[string]string{"SIMULATOR_CHANGE_PROBABILITY": "1.5"}, "SIMULATOR_CHANGE_PROBABILITY"},
		{"bad port", map[string]string{"APP_PORT": "http"}, "APP_PORT"},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad backend", map[string]string{"HISTORY_BACKEND": "redis"}, "HISTORY_BACKEND"},
		{"topic without project", map[string]string{"PUBSUB_TOPIC": "availability"}, "PUBSUB_PROJECT_ID"},
		{"bad mqtt scheme", map[string]string{"MQTT_BROKER_URL": "http://broker:1883"}, "MQTT_BROKER_URL"},
		{"bad bool", map[string]string{"OTEL_ENABLED": "sometimes"}, "OTEL_ENABLED"},
		{"missing file", map[string]string{"CONFIG_FILE": "/nonexistent/drivepulse.yaml"}, "read file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := config.Default()
	cfg.Port = ""
	cfg.Simulator.Interval = 0
	cfg.History.Backend = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
	assert.Contains(t, err.Error(), "SIMULATOR_INTERVAL")
	assert.Contains(t, err.Error(), "HISTORY_BACKEND")
}
