package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/stream"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

func newTestHandler() *PubSubHandler {
	return &PubSubHandler{
		vitalsService: vitals.NewService(vitals.ServiceConfig{
			History: vitals.NewInMemoryHistory(0),
			Logger:  zerolog.Nop(),
		}),
		hub:    stream.NewHub(stream.HubConfig{Logger: zerolog.Nop()}),
		logger: zerolog.Nop(),
	}
}

func TestHandleReading(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	err := h.handleReading(ctx, &vitals.Reading{
		PatientID: "pat_1",
		Signals:   map[vitals.Signal]float64{vitals.SignalHeartRate: 72},
	})
	if err != nil {
		t.Fatalf("handle reading failed: %v", err)
	}

	history, err := h.vitalsService.History(ctx, "pat_1", 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected the reading stored, got %d entries", len(history))
	}
}

func TestHandleReading_MissingPayload(t *testing.T) {
	h := newTestHandler()

	if err := h.handleReading(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a vital_reading without payload")
	}
	// An invalid reading propagates the ingest error so the message nacks.
	if err := h.handleReading(context.Background(), &vitals.Reading{}); err == nil {
		t.Fatal("expected an error for a reading without patient id")
	}
}

func TestHandleMetric(t *testing.T) {
	h := newTestHandler()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	err := h.handleMetric(context.Background(), &MetricPayload{
		Name:   "ingest_latency_ms",
		Value:  12.5,
		Time:   at,
		Labels: map[string]string{"device": "monitor_7"},
	})
	if err != nil {
		t.Fatalf("handle metric failed: %v", err)
	}

	points, err := h.hub.Read(stream.StreamMetrics, 0, time.Time{})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 metric point, got %d", len(points))
	}
	p := points[0]
	if p.Type != "ingest_latency_ms" || p.Values["value"] != 12.5 || !p.Time.Equal(at) {
		t.Errorf("unexpected point %+v", p)
	}
}

func TestHandleMetric_Invalid(t *testing.T) {
	h := newTestHandler()

	if err := h.handleMetric(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a metric_point without payload")
	}
	if err := h.handleMetric(context.Background(), &MetricPayload{Value: 1}); err == nil {
		t.Fatal("expected an error for a metric without name")
	}
}
