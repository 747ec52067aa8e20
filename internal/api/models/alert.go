package models

import (
	"github.com/titorm/nexus-saude-sub001/internal/alerting"
)

// AlertCreateRequest is the body for POST /v1/alerts.
type AlertCreateRequest struct {
	PatientID string   `json:"patientId" validate:"required"`
	Type      string   `json:"type" validate:"required"`
	Severity  string   `json:"severity" validate:"required,oneof=low medium high critical"`
	Category  string   `json:"category,omitempty"`
	Message   string   `json:"message" validate:"required"`
	Source    string   `json:"source,omitempty"`
	Signal    string   `json:"signal,omitempty"`
	Value     *float64 `json:"value,omitempty"`
}

// AlertAcknowledgeRequest is the body for POST /v1/alerts/{alertId}/acknowledge.
type AlertAcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledgedBy" validate:"required"`
}

// AlertResolveRequest is the body for POST /v1/alerts/{alertId}/resolve.
type AlertResolveRequest struct {
	ResolvedBy string `json:"resolvedBy" validate:"required"`
	Notes      string `json:"notes,omitempty"`
}

// Alert is the API representation of an alert.
type Alert struct {
	ID                string     `json:"id"`
	PatientID         string     `json:"patientId"`
	Type              string     `json:"type"`
	Severity          string     `json:"severity"`
	Category          string     `json:"category"`
	Message           string     `json:"message"`
	Source            string     `json:"source,omitempty"`
	Signal            string     `json:"signal,omitempty"`
	Value             *float64   `json:"value,omitempty"`
	ReferenceRange    string     `json:"referenceRange,omitempty"`
	CorrelationID     string     `json:"correlationId,omitempty"`
	State             string     `json:"state"`
	SuppressionReason string     `json:"suppressionReason,omitempty"`
	CreatedAt         Timestamp  `json:"createdAt"`
	AcknowledgedBy    string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt    *Timestamp `json:"acknowledgedAt,omitempty"`
	ResolvedBy        string     `json:"resolvedBy,omitempty"`
	ResolvedAt        *Timestamp `json:"resolvedAt,omitempty"`
	ResolutionNotes   string     `json:"resolutionNotes,omitempty"`
	EscalatedAt       *Timestamp `json:"escalatedAt,omitempty"`
}

// PagedAlerts is a page of alerts.
type PagedAlerts struct {
	Items []Alert           `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// NewAlert maps a domain alert to its API representation.
func NewAlert(a *alerting.Alert) Alert {
	return Alert{
		ID:                a.ID,
		PatientID:         a.PatientID,
		Type:              a.Type,
		Severity:          string(a.Severity),
		Category:          string(a.Category),
		Message:           a.Message,
		Source:            a.Source,
		Signal:            a.Signal,
		Value:             a.Value,
		ReferenceRange:    a.ReferenceRange,
		CorrelationID:     a.CorrelationID,
		State:             string(a.State),
		SuppressionReason: a.SuppressionReason,
		CreatedAt:         Timestamp(a.CreatedAt),
		AcknowledgedBy:    a.AcknowledgedBy,
		AcknowledgedAt:    timestampPtr(a.AcknowledgedAt),
		ResolvedBy:        a.ResolvedBy,
		ResolvedAt:        timestampPtr(a.ResolvedAt),
		ResolutionNotes:   a.ResolutionNotes,
		EscalatedAt:       timestampPtr(a.EscalatedAt),
	}
}

// NewAlerts maps a slice of domain alerts.
func NewAlerts(alerts []*alerting.Alert) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, NewAlert(a))
	}
	return out
}
