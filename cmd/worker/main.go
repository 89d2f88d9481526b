// Package main provides the entrypoint for the DrivePulse history worker. It
// records availability events from Pub/Sub into PostgreSQL.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/api/models"
	"github.com/drivepulse/drivepulse/internal/api/response"
	"github.com/drivepulse/drivepulse/internal/config"
	"github.com/drivepulse/drivepulse/internal/database"
	"github.com/drivepulse/drivepulse/internal/history"
	"github.com/drivepulse/drivepulse/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "drivepulse-worker").
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.Level())

	log.Info().Str("build_time", BuildTime).Msg("starting DrivePulse worker")

	if cfg.PubSub.Subscription == "" {
		log.Fatal().Msg("PUBSUB_SUBSCRIPTION is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	repo := history.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare history schema")
	}

	consumer := worker.NewConsumer(repo, log)

	consumerCfg := worker.DefaultConsumerConfig()
	consumerCfg.ProjectID = cfg.PubSub.ProjectID
	consumerCfg.SubscriptionName = cfg.PubSub.Subscription

	pubsubHandler, err := worker.NewPubSubHandler(ctx, consumerCfg, consumer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pubsub handler")
	}
	defer func() {
		if err := pubsubHandler.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close pubsub client")
		}
	}()

	// Health endpoint for the container platform
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		health := models.Health{
			Status: models.HealthStatusOK,
			Time:   models.Timestamp(time.Now()),
			Details: map[string]interface{}{
				"version":  Version,
				"consumer": consumer.MetricsSnapshot(),
			},
		}
		status := http.StatusOK
		pingCtx, pingCancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer pingCancel()
		if err := repo.Ping(pingCtx); err != nil {
			health.Status = models.HealthStatusFail
			health.Details["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		response.JSON(w, req, status, health)
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	receiveDone := make(chan struct{})
	go func() {
		defer close(receiveDone)
		if err := pubsubHandler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub receive stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	<-receiveDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().
		Interface("consumer", consumer.MetricsSnapshot()).
		Msg("worker stopped")
}
