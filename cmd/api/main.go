// Package main provides the entrypoint for the Nexus telemetry API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/api"
	"github.com/titorm/nexus-saude-sub001/internal/api/middleware"
	"github.com/titorm/nexus-saude-sub001/internal/config"
	"github.com/titorm/nexus-saude-sub001/internal/database"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
	"github.com/titorm/nexus-saude-sub001/internal/notify"
	"github.com/titorm/nexus-saude-sub001/internal/stream"
	"github.com/titorm/nexus-saude-sub001/internal/telemetry"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
	"github.com/titorm/nexus-saude-sub001/internal/worker"
	"github.com/titorm/nexus-saude-sub001/internal/ws"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "nexus-telemetry-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Nexus telemetry API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
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

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Load the rules file when configured. The file keeps reference
	// ranges, alert policy, escalation policies and the recipient
	// directory; everything falls back to built-in defaults without it.
	rulesPath := os.Getenv("RULES_FILE")
	var rules *config.Config
	if rulesPath != "" {
		rules, err = config.Load(rulesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", rulesPath).Msg("failed to load rules file")
		}
		log.Info().Str("path", rulesPath).Msg("rules file loaded")
	}

	// Connect to database when enabled; the alert store falls back to the
	// bounded in-memory repository otherwise.
	var alertRepo alerting.Repository
	var ready func(ctx context.Context) error
	if os.Getenv("DB_ENABLED") == "true" {
		dbConfig := database.ConfigFromEnv()
		pool, dbErr := database.Connect(ctx, dbConfig)
		if dbErr != nil {
			log.Fatal().Err(dbErr).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		alertRepo = alerting.NewPostgresRepository(pool)
		ready = pool.Ping
	} else {
		alertRepo = alerting.NewInMemoryRepository()
		log.Info().Msg("using in-memory alert store")
	}

	// Initialize distribution hub
	streamCfg := stream.HubConfig{Logger: log}
	if rules != nil {
		streamCfg.Capacity = rules.Stream.Capacity
		streamCfg.Retention = rules.Stream.Retention
	}
	hub := stream.NewHub(streamCfg)
	bridge := stream.NewBridge(hub)
	log.Info().Msg("distribution hub initialized")

	// Initialize notification dispatcher
	deliveryMetrics, err := notify.NewDeliveryMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize delivery metrics")
	}
	notifyCfg := notify.DispatcherConfig{
		Channels: []notify.Channel{
			notify.NewEmailChannel(log),
			notify.NewSMSChannel(log),
			notify.NewPushChannel(log),
			notify.NewWebhookChannel(log),
		},
		Logger:  log,
		Metrics: deliveryMetrics,
	}
	if rules != nil {
		notifyCfg.QueueSize = rules.Notify.QueueSize
		notifyCfg.HistorySize = rules.Notify.HistorySize
		notifyCfg.Recipients = rules.Notify.Recipients
	}
	dispatcher := notify.NewDispatcher(notifyCfg)
	log.Info().Msg("notification dispatcher initialized")

	// Initialize escalation manager
	escalationCfg := escalation.ServiceConfig{
		Repository: escalation.NewInMemoryRepository(0),
		Logger:     log,
		Publisher:  bridge,
		Notifier:   dispatcher,
	}
	if rules != nil {
		escalationCfg.Policies = rules.EscalationPolicies()
		escalationCfg.Pools = rules.Pools()
		escalationCfg.Ceiling = rules.Escalation.Ceiling
	}
	escalationService := escalation.NewService(escalationCfg)
	log.Info().Msg("escalation manager initialized")

	// Initialize alert engine
	alertCfg := alerting.ServiceConfig{
		Repository: alertRepo,
		Logger:     log,
		Escalator:  escalationService,
		Notifier:   notify.EngineNotifier{D: dispatcher},
		Publisher:  bridge,
	}
	if rules != nil {
		alertCfg.Policy = rules.AlertPolicy()
	}
	alertService := alerting.NewService(alertCfg)
	log.Info().Msg("alert engine initialized")

	// Initialize vital signs monitor
	vitalsCfg := vitals.ServiceConfig{
		Logger:    log,
		Sink:      alertService,
		Publisher: bridge,
	}
	if rules != nil {
		vitalsCfg.History = vitals.NewInMemoryHistory(rules.Monitor.HistoryCapacity)
		vitalsCfg.Analyzer = vitals.NewAnalyzer(rules.Ranges(), rules.AnalyzerConfig())
	} else {
		vitalsCfg.History = vitals.NewInMemoryHistory(0)
	}
	vitalsService := vitals.NewService(vitalsCfg)
	log.Info().Msg("vital signs monitor initialized")

	// The dispatcher drain loop, the WebSocket relay and the maintenance
	// sweeper run until runCtx is cancelled at shutdown.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go dispatcher.Run(runCtx)

	relay := ws.NewRelay(hub, log)
	go relay.Run(runCtx)

	sweeper := worker.NewSweeper(worker.SweeperConfig{
		Logger: log,
		Jobs: []worker.Job{
			worker.AlertReevaluationJob(alertService, time.Minute),
			worker.EscalationSweepJob(escalationService, time.Minute),
			worker.TrendReanalysisJob(vitalsService, 5*time.Minute),
			worker.StreamRetentionJob(hub, 5*time.Minute),
			worker.AlertRetentionJob(alertService, time.Hour),
		},
	})
	go sweeper.Run(runCtx)
	log.Info().Msg("maintenance sweeper started")

	// Watch the rules file and apply changes in place. A reload touches
	// analyzer ranges, the alert policy, escalation rules and the
	// recipient directory; capacities need a restart.
	if rulesPath != "" {
		go func() {
			watchErr := config.Watch(runCtx, rulesPath, log, func(c *config.Config) {
				vitalsService.Analyzer().SetRules(c.Ranges(), c.AnalyzerConfig())
				alertService.SetPolicy(c.AlertPolicy())
				escalationService.SetRules(c.EscalationPolicies(), c.Pools())
				dispatcher.SetRecipients(c.Notify.Recipients)
				log.Info().Str("path", rulesPath).Msg("rules reloaded")
			})
			if watchErr != nil {
				log.Error().Err(watchErr).Msg("rules file watch stopped")
			}
		}()
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		ServiceName:       serviceName,
		Metrics:           metrics,
		AlertService:      alertService,
		VitalsService:     vitalsService,
		EscalationService: escalationService,
		Dispatcher:        dispatcher,
		Hub:               hub,
		Relay:             relay,
		Ready:             ready,
		JobMetrics:        sweeper.MetricsSnapshot,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
