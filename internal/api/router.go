// Package api provides the HTTP API for DrivePulse.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/api/handler"
	"github.com/drivepulse/drivepulse/internal/api/middleware"
	"github.com/drivepulse/drivepulse/internal/api/response"
	"github.com/drivepulse/drivepulse/internal/history"
	"github.com/drivepulse/drivepulse/internal/query"
	"github.com/drivepulse/drivepulse/internal/resilience"
	"github.com/drivepulse/drivepulse/internal/station"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Registry is the station registry; required.
	Registry *station.Registry

	// History backs the per-station history endpoint; nil disables it.
	History history.Repository

	// Stream serves GET /v1/stations/stream; nil leaves the route unmounted.
	Stream http.Handler

	Simulator         handler.SimulatorStatus
	SimulatorInterval time.Duration
	StreamClients     handler.ClientCounter
	Resilience        *resilience.Registry
	Dependencies      map[string]handler.Pinger

	CORSAllowedOrigins []string
	RequireTLS         bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "drivepulse-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))           // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))         // Panic recovery
	r.Use(chimiddleware.RealIP)                    // Real IP extraction
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins)) // Browser dashboards
	r.Use(middleware.SecurityHeaders)              // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))   // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)              // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.Method+" "+r.URL.Path)
	})

	// Initialize handlers
	engine := query.NewEngine(cfg.Registry)
	indexHandler := handler.NewIndexHandler(cfg.Version)
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:           cfg.Version,
		BuildTime:         cfg.BuildTime,
		Stations:          cfg.Registry,
		Simulator:         cfg.Simulator,
		SimulatorInterval: cfg.SimulatorInterval,
		Stream:            cfg.StreamClients,
		Resilience:        cfg.Resilience,
		Dependencies:      cfg.Dependencies,
	})
	stationHandler := handler.NewStationHandler(cfg.Registry, cfg.History, cfg.Logger)
	searchHandler := handler.NewSearchHandler(engine)
	mapHandler := handler.NewMapHandler(engine)

	// Rate limits per endpoint category
	searchRateLimit := middleware.RateLimitByIP(middleware.SearchRateLimit)     // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	r.With(standardRateLimit).Get("/", indexHandler.Index)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (unlimited, polled by the platform)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/stations", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", stationHandler.ListStations)
			r.Get("/ml", stationHandler.ListStationsForML)
			if cfg.Stream != nil {
				r.Method(http.MethodGet, "/stream", cfg.Stream)
			}
			r.Route("/{stationId}", func(r chi.Router) {
				r.Get("/", stationHandler.GetStation)
				r.Get("/history", stationHandler.GetHistory)
			})
		})

		// Search endpoints - distance scans, stricter limit
		r.Route("/search", func(r chi.Router) {
			r.Use(searchRateLimit)
			r.With(middleware.RequireJSON).Post("/nearest", searchHandler.FindNearest)
			r.Get("/nearby", searchHandler.Nearby)
		})
		r.With(searchRateLimit).Get("/directions", searchHandler.Directions)

		r.With(standardRateLimit).Get("/export/ml.csv", stationHandler.ExportCSV)

		r.Route("/map", func(r chi.Router) {
			r.With(standardRateLimit).Get("/stations.geojson", mapHandler.StationsGeoJSON)
			r.With(searchRateLimit).Get("/navigation.geojson", mapHandler.NavigationGeoJSON)
		})
	})

	return r
}
