package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
	"github.com/titorm/nexus-saude-sub001/internal/stream"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

func TestBridge_AlertEvent(t *testing.T) {
	h := newTestHub(0, 0, nil)
	b := stream.NewBridge(h)

	value := 35.0
	b.AlertEvent(context.Background(), alerting.EventAlertCreated, &alerting.Alert{
		ID:        "alr_1",
		PatientID: "pat_1",
		Type:      "bradycardia",
		Severity:  alerting.SeverityCritical,
		Category:  alerting.CategoryVitalSigns,
		Value:     &value,
	})

	points, err := h.Read(stream.StreamAlerts, 0, time.Time{})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if p.Type != "alert_created" {
		t.Errorf("unexpected point type %s", p.Type)
	}
	if p.Labels["alert_id"] != "alr_1" || p.Labels["severity"] != "critical" {
		t.Errorf("unexpected labels %v", p.Labels)
	}
	if p.Values["value"] != 35 {
		t.Errorf("expected the breaching value carried, got %v", p.Values)
	}
}

func TestBridge_EscalationEvent(t *testing.T) {
	h := newTestHub(0, 0, nil)
	b := stream.NewBridge(h)

	b.EscalationEvent(context.Background(), escalation.EventAdvanced, &escalation.Escalation{
		ID:        "esc_1",
		AlertID:   "alr_1",
		PatientID: "pat_1",
		Severity:  alerting.SeverityCritical,
		Level:     2,
	})

	points, _ := h.Read(stream.StreamAlerts, 0, time.Time{})
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if p.Type != "escalation_advanced" {
		t.Errorf("unexpected point type %s", p.Type)
	}
	if p.Labels["level"] != "2" || p.Values["level"] != 2 {
		t.Errorf("expected the level carried, labels=%v values=%v", p.Labels, p.Values)
	}
}

func TestBridge_ReadingIngested(t *testing.T) {
	h := newTestHub(0, 0, nil)
	b := stream.NewBridge(h)

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.ReadingIngested(context.Background(), &vitals.Reading{
		PatientID: "pat_1",
		Time:      at,
		Signals: map[vitals.Signal]float64{
			vitals.SignalHeartRate:        72,
			vitals.SignalOxygenSaturation: 98,
		},
	}, nil)

	points, _ := h.Read(stream.StreamVitalSigns, 0, time.Time{})
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if !p.Time.Equal(at) {
		t.Errorf("expected the reading timestamp kept, got %v", p.Time)
	}
	if p.Values["heart_rate"] != 72 || p.Values["oxygen_saturation"] != 98 {
		t.Errorf("expected per-signal values, got %v", p.Values)
	}
	if p.Labels["patient_id"] != "pat_1" {
		t.Errorf("unexpected labels %v", p.Labels)
	}
}
