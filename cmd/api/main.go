// Package main provides the entrypoint for the DrivePulse API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/api"
	"github.com/drivepulse/drivepulse/internal/api/handler"
	"github.com/drivepulse/drivepulse/internal/api/middleware"
	"github.com/drivepulse/drivepulse/internal/config"
	"github.com/drivepulse/drivepulse/internal/database"
	"github.com/drivepulse/drivepulse/internal/history"
	"github.com/drivepulse/drivepulse/internal/publish"
	"github.com/drivepulse/drivepulse/internal/resilience"
	"github.com/drivepulse/drivepulse/internal/simulator"
	"github.com/drivepulse/drivepulse/internal/station"
	"github.com/drivepulse/drivepulse/internal/stream"
	"github.com/drivepulse/drivepulse/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "drivepulse-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.Level())

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting DrivePulse API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Seed the station registry
	locations := station.DefaultLocations()
	if cfg.StationsFile != "" {
		locations, err = station.LoadLocations(cfg.StationsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load station locations")
		}
	}

	rng := station.NewRand(cfg.Simulator.Seed)
	registry, err := station.NewRegistry(station.Generate(locations, rng, time.Now()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build station registry")
	}
	log.Info().Int("stations", registry.Len()).Msg("station registry seeded")

	breakers := resilience.NewRegistry()
	dependencies := map[string]handler.Pinger{}

	// History storage
	var (
		repo history.Repository
		pool *pgxpool.Pool
	)
	switch cfg.History.Backend {
	case config.HistoryBackendPostgres:
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		pgRepo := history.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare history schema")
		}
		repo = pgRepo
		dependencies["postgres"] = pgRepo
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	default:
		repo = history.NewInMemoryRepository(cfg.History.Capacity)
	}

	historyExec := resilience.NewExecutor(withRegistry(resilience.DefaultExecutorConfig("history"), breakers))
	sinks := []simulator.Sink{history.NewRecorder(repo, historyExec, log)}

	// Event bus
	if cfg.PubSub.Enabled() {
		pub, err := publish.NewPubSubPublisher(ctx, publish.PubSubConfig{
			ProjectID: cfg.PubSub.ProjectID,
			TopicID:   cfg.PubSub.Topic,
			Executor:  resilience.NewExecutor(withRegistry(resilience.DefaultExecutorConfig("pubsub"), breakers)),
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub publisher")
		}
		defer closeQuietly(log, "pubsub", pub.Close)
		sinks = append(sinks, pub)
		log.Info().Str("topic", cfg.PubSub.Topic).Msg("pubsub publisher initialized")
	}

	// Broker fan-out
	if cfg.MQTT.Enabled() {
		mqttCfg := publish.MQTTConfig{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Retained:    cfg.MQTT.Retained,
			Executor:    resilience.NewExecutor(withRegistry(resilience.DefaultExecutorConfig("mqtt"), breakers)),
			Logger:      log,
		}
		client, err := publish.ConnectMQTT(mqttCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		pub := publish.NewMQTTPublisher(client, mqttCfg)
		defer closeQuietly(log, "mqtt", pub.Close)
		sinks = append(sinks, pub)
		log.Info().Str("broker", cfg.MQTT.BrokerURL).Msg("mqtt publisher initialized")
	}

	// Live stream
	hub := stream.NewHub(stream.Config{AllowedOrigins: cfg.CORSAllowedOrigins}, registry, log)
	defer hub.Close()
	sinks = append(sinks, hub)

	sim, err := simulator.New(simulator.Options{
		Config: simulator.Config{
			Interval:          cfg.Simulator.Interval,
			ChangeProbability: cfg.Simulator.ChangeProbability,
		},
		Registry: registry,
		Rand:     rng,
		Clock:    time.Now,
		Logger:   log,
		Sinks:    sinks,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulator")
	}

	simCtx, stopSimulator := context.WithCancel(ctx)
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		sim.Run(simCtx)
	}()

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		Registry:           registry,
		History:            repo,
		Stream:             hub,
		StreamClients:      hub,
		Simulator:          sim,
		SimulatorInterval:  cfg.Simulator.Interval,
		Resilience:         breakers,
		Dependencies:       dependencies,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequireTLS:         cfg.IsProduction(),
	})

	// WriteTimeout stays zero so hijacked stream connections are not cut.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	stopSimulator()
	<-simDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func withRegistry(cfg resilience.ExecutorConfig, registry *resilience.Registry) resilience.ExecutorConfig {
	cfg.Registry = registry
	return cfg
}

func closeQuietly(log zerolog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn().Err(err).Str("sink", name).Msg("failed to close sink")
	}
}
