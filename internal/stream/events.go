package stream

import (
	"context"
	"strconv"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

// Bridge adapts the domain services' event hooks onto hub streams. Alert
// and escalation state changes land on StreamAlerts; ingested readings
// land on StreamVitalSigns with one numeric value per signal.
type Bridge struct {
	hub *Hub
}

// NewBridge creates a bridge publishing into the hub.
func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

// AlertEvent publishes an alert lifecycle event.
func (b *Bridge) AlertEvent(ctx context.Context, event string, a *alerting.Alert) {
	p := Point{
		Type: event,
		Labels: map[string]string{
			"alert_id":   a.ID,
			"patient_id": a.PatientID,
			"severity":   string(a.Severity),
			"category":   string(a.Category),
		},
		Data: a,
	}
	if a.Value != nil {
		p.Values = map[string]float64{"value": *a.Value}
	}
	b.hub.Publish(ctx, StreamAlerts, p)
}

// EscalationEvent publishes an escalation lifecycle event.
func (b *Bridge) EscalationEvent(ctx context.Context, event string, e *escalation.Escalation) {
	b.hub.Publish(ctx, StreamAlerts, Point{
		Type: event,
		Labels: map[string]string{
			"escalation_id": e.ID,
			"alert_id":      e.AlertID,
			"patient_id":    e.PatientID,
			"severity":      string(e.Severity),
			"level":         strconv.Itoa(e.Level),
		},
		Values: map[string]float64{"level": float64(e.Level)},
		Data:   e,
	})
}

// ReadingIngested publishes a processed reading.
func (b *Bridge) ReadingIngested(ctx context.Context, r *vitals.Reading, trends map[vitals.Signal]vitals.TrendSummary) {
	values := make(map[string]float64, len(r.Signals))
	for sig, v := range r.Signals {
		values[string(sig)] = v
	}
	b.hub.Publish(ctx, StreamVitalSigns, Point{
		Time:   r.Time,
		Type:   "reading",
		Labels: map[string]string{"patient_id": r.PatientID},
		Values: values,
		Data: struct {
			Reading *vitals.Reading                       `json:"reading"`
			Trends  map[vitals.Signal]vitals.TrendSummary `json:"trends,omitempty"`
		}{Reading: r, Trends: trends},
	})
}
