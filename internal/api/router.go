// Package api provides the HTTP API for the telemetry engine.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/api/handler"
	"github.com/titorm/nexus-saude-sub001/internal/api/middleware"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
	"github.com/titorm/nexus-saude-sub001/internal/notify"
	"github.com/titorm/nexus-saude-sub001/internal/stream"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	AlertService      *alerting.Service
	VitalsService     *vitals.Service
	EscalationService *escalation.Service
	Dispatcher        *notify.Dispatcher
	Hub               *stream.Hub

	// Relay serves the WebSocket endpoint. Optional.
	Relay http.Handler

	// Ready probes hard dependencies for the readiness endpoint. Optional.
	Ready func(ctx context.Context) error

	// JobMetrics snapshots background job counters for the status endpoint.
	// Optional.
	JobMetrics func() map[string]interface{}
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "nexus-telemetry-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Ready, cfg.JobMetrics)
	readingHandler := handler.NewReadingHandler(cfg.VitalsService)
	alertHandler := handler.NewAlertHandler(cfg.AlertService)
	escalationHandler := handler.NewEscalationHandler(cfg.EscalationService)
	streamHandler := handler.NewStreamHandler(cfg.Hub)
	notificationHandler := handler.NewNotificationHandler(cfg.Dispatcher)

	// Create rate limit middleware for different endpoint categories
	ingestRateLimit := middleware.RateLimitByIP(middleware.IngestRateLimit)     // 600 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// WebSocket endpoint upgrades before the JSON content-type middleware.
	if cfg.Relay != nil {
		r.Handle("/v1/ws", cfg.Relay)
	}

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Telemetry ingestion - device-scale rate limiting
		r.Group(func(r chi.Router) {
			r.Use(ingestRateLimit)
			r.Post("/readings", readingHandler.Submit)
			r.Post("/metrics", streamHandler.SubmitMetric)
		})

		// Clinical surfaces - standard rate limiting
		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)

			r.Get("/patients/{patientId}/readings", readingHandler.History)

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alertHandler.List)
				r.Post("/", alertHandler.Create)
				r.Route("/{alertId}", func(r chi.Router) {
					r.Get("/", alertHandler.Get)
					r.Post("/acknowledge", alertHandler.Acknowledge)
					r.Post("/resolve", alertHandler.Resolve)
				})
			})

			r.Route("/escalations", func(r chi.Router) {
				r.Get("/", escalationHandler.ListActive)
				r.Get("/history", escalationHandler.History)
				r.Route("/{escalationId}", func(r chi.Router) {
					r.Get("/", escalationHandler.Get)
					r.Post("/acknowledge", escalationHandler.Acknowledge)
					r.Post("/resolve", escalationHandler.Resolve)
				})
			})

			r.Route("/streams", func(r chi.Router) {
				r.Get("/", streamHandler.ListStreams)
				r.Get("/{stream}/points", streamHandler.Points)
				r.Get("/{stream}/aggregate", streamHandler.Aggregate)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.History)
				r.Get("/{jobId}", notificationHandler.Get)
			})
		})
	})

	return r
}
