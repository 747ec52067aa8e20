package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/stream"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

// PubSubHandler consumes telemetry messages published by bedside devices
// and upstream services.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	vitalsService    *vitals.Service
	hub              *stream.Hub
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	VitalsService    *vitals.Service
	Hub              *stream.Hub
	Logger           zerolog.Logger
}

// TelemetryMessage is the wire envelope for ingested telemetry. Kind
// selects the payload: "vital_reading" carries Reading, "metric_point"
// carries Metric.
type TelemetryMessage struct {
	Kind    string          `json:"kind"`
	Reading *vitals.Reading `json:"reading,omitempty"`
	Metric  *MetricPayload  `json:"metric,omitempty"`
}

// MetricPayload is an operational metric sample from a device or service.
type MetricPayload struct {
	Name   string            `json:"name"`
	Value  float64           `json:"value"`
	Time   time.Time         `json:"time,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 100
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		vitalsService:    cfg.VitalsService,
		hub:              cfg.Hub,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
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
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var tm TelemetryMessage
	if err := json.Unmarshal(msg.Data, &tm); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		// Malformed payloads can never succeed on redelivery.
		msg.Ack()
		return
	}

	var err error
	switch tm.Kind {
	case "vital_reading":
		err = h.handleReading(ctx, tm.Reading)
	case "metric_point":
		err = h.handleMetric(ctx, tm.Metric)
	default:
		logger.Warn().Str("kind", tm.Kind).Msg("unknown message kind")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Str("kind", tm.Kind).Msg("message processing failed")
		msg.Nack()
		return
	}

	logger.Debug().
		Str("kind", tm.Kind).
		Dur("duration", time.Since(startTime)).
		Msg("message processed")

	msg.Ack()
}

func (h *PubSubHandler) handleReading(ctx context.Context, r *vitals.Reading) error {
	if r == nil {
		return fmt.Errorf("vital_reading message without reading payload")
	}

	result, err := h.vitalsService.Ingest(ctx, r)
	if err != nil {
		return fmt.Errorf("ingesting reading: %w", err)
	}

	if len(result.Alerts) > 0 {
		h.logger.Info().
			Str("patient_id", r.PatientID).
			Int("alerts", len(result.Alerts)).
			Msg("reading produced alerts")
	}
	return nil
}

func (h *PubSubHandler) handleMetric(ctx context.Context, m *MetricPayload) error {
	if m == nil {
		return fmt.Errorf("metric_point message without metric payload")
	}
	if m.Name == "" {
		return fmt.Errorf("metric_point message without name")
	}

	at := m.Time
	if at.IsZero() {
		at = time.Now()
	}

	h.hub.Publish(ctx, stream.StreamMetrics, stream.Point{
		Time:   at,
		Type:   m.Name,
		Labels: m.Labels,
		Values: map[string]float64{"value": m.Value},
	})
	return nil
}
