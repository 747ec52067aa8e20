// Package main provides the entrypoint for the telemetry ingestion worker.
// It consumes readings and operational metrics from Pub/Sub and runs them
// through the same monitoring pipeline the API uses, exposing only a
// health endpoint.
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
	"github.com/titorm/nexus-saude-sub001/internal/config"
	"github.com/titorm/nexus-saude-sub001/internal/database"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
	"github.com/titorm/nexus-saude-sub001/internal/notify"
	"github.com/titorm/nexus-saude-sub001/internal/stream"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
	"github.com/titorm/nexus-saude-sub001/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "nexus-telemetry-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting telemetry ingestion worker")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if subscription == "" {
		subscription = "telemetry-ingest"
	}
	if projectID == "" {
		log.Fatal().Msg("PUBSUB_PROJECT_ID is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional rules file. The worker applies it once at startup; the API
	// process owns live reloads.
	var rules *config.Config
	if rulesPath := os.Getenv("RULES_FILE"); rulesPath != "" {
		var err error
		rules, err = config.Load(rulesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", rulesPath).Msg("failed to load rules file")
		}
		log.Info().Str("path", rulesPath).Msg("rules file loaded")
	}

	// The worker shares the alert store with the API through Postgres
	// when enabled; an in-memory store keeps its alerts process-local.
	var alertRepo alerting.Repository
	if os.Getenv("DB_ENABLED") == "true" {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		alertRepo = alerting.NewPostgresRepository(pool)
		log.Info().Str("database", dbConfig.Database).Msg("database connected")
	} else {
		alertRepo = alerting.NewInMemoryRepository()
	}

	streamCfg := stream.HubConfig{Logger: log}
	if rules != nil {
		streamCfg.Capacity = rules.Stream.Capacity
		streamCfg.Retention = rules.Stream.Retention
	}
	hub := stream.NewHub(streamCfg)
	bridge := stream.NewBridge(hub)

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

	go dispatcher.Run(ctx)

	// Standing heart-rate average over recent readings, published to the
	// metrics stream for dashboards.
	if _, err := hub.ScheduleAggregate(ctx, stream.AggregateSpec{
		SourceStream: stream.StreamVitalSigns,
		Field:        "heart_rate",
		Fn:           stream.AggAvg,
		Window:       5 * time.Minute,
		Interval:     time.Minute,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to schedule vitals aggregate")
	}

	sweeper := worker.NewSweeper(worker.SweeperConfig{
		Logger: log,
		Jobs: []worker.Job{
			worker.AlertReevaluationJob(alertService, time.Minute),
			worker.EscalationSweepJob(escalationService, time.Minute),
			worker.StreamRetentionJob(hub, 5*time.Minute),
		},
	})
	go sweeper.Run(ctx)

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        projectID,
		SubscriptionName: subscription,
		VitalsService:    vitalsService,
		Hub:              hub,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer handler.Close()

	go func() {
		if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("pubsub receive failed")
		}
	}()

	// Health endpoint for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","version":"` + Version + `"}`))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
