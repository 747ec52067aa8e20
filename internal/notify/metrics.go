package notify

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/titorm/nexus-saude-sub001/internal/notify"

// DeliveryMetrics holds the OpenTelemetry instruments for channel
// deliveries.
type DeliveryMetrics struct {
	deliveryDuration metric.Float64Histogram
	deliveryTotal    metric.Int64Counter
	jobsCompleted    metric.Int64Counter
}

// NewDeliveryMetrics creates metrics for monitoring notification delivery.
func NewDeliveryMetrics() (*DeliveryMetrics, error) {
	meter := otel.Meter(meterName)

	deliveryDuration, err := meter.Float64Histogram(
		"notify.delivery.duration",
		metric.WithDescription("Duration of channel delivery attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	deliveryTotal, err := meter.Int64Counter(
		"notify.delivery.total",
		metric.WithDescription("Total number of channel delivery attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	jobsCompleted, err := meter.Int64Counter(
		"notify.jobs.completed",
		metric.WithDescription("Total number of completed notification jobs"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	return &DeliveryMetrics{
		deliveryDuration: deliveryDuration,
		deliveryTotal:    deliveryTotal,
		jobsCompleted:    jobsCompleted,
	}, nil
}

// RecordDelivery records one (channel, recipient) delivery attempt.
func (m *DeliveryMetrics) RecordDelivery(channel ChannelType, priority Priority, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("notify.channel", string(channel)),
		attribute.String("notify.priority", string(priority)),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Use background context for metrics to avoid context cancellation issues
	ctx := context.TODO()
	m.deliveryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.deliveryTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJob records a completed job with its final status.
func (m *DeliveryMetrics) RecordJob(status JobStatus) {
	if m == nil {
		return
	}
	m.jobsCompleted.Add(context.TODO(), 1, metric.WithAttributes(
		attribute.String("notify.status", string(status)),
	))
}
