// Package alerting owns the alert lifecycle: creation, deduplication,
// suppression, correlation, acknowledgement, and resolution.
package alerting

import (
	"fmt"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparison. Higher is more urgent.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal urgency of the severity, or 0 if unknown.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	return severityRank[s] != 0
}

// ParseSeverity converts a string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Category classifies the origin of an alert.
type Category string

const (
	CategoryVitalSigns  Category = "vital_signs"
	CategorySystem      Category = "system"
	CategoryPatient     Category = "patient"
	CategoryService     Category = "service"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
)

var validCategories = map[Category]bool{
	CategoryVitalSigns:  true,
	CategorySystem:      true,
	CategoryPatient:     true,
	CategoryService:     true,
	CategorySecurity:    true,
	CategoryPerformance: true,
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	return validCategories[c]
}

// State is the lifecycle state of an alert.
//
// Transitions only advance: ACTIVE -> ACKNOWLEDGED -> RESOLVED, with a direct
// ACTIVE -> RESOLVED shortcut that auto-acknowledges. SUPPRESSED is assigned
// only at creation. RESOLVED and SUPPRESSED are terminal.
type State string

const (
	StateActive       State = "active"
	StateAcknowledged State = "acknowledged"
	StateResolved     State = "resolved"
	StateSuppressed   State = "suppressed"
)

// Terminal reports whether no further transitions may leave this state.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateSuppressed
}

// Alert is a detected abnormal condition requiring human awareness and
// eventual resolution.
type Alert struct {
	ID        string   `json:"id"`
	PatientID string   `json:"patientId"`
	Type      string   `json:"type"`
	Severity  Severity `json:"severity"`
	Category  Category `json:"category"`
	Message   string   `json:"message"`
	Source    string   `json:"source,omitempty"`

	// Measurement context for vital-sign alerts.
	Signal         string   `json:"signal,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	ReferenceRange string   `json:"referenceRange,omitempty"`

	// CorrelationID links alerts describing the same underlying incident.
	// Empty while the alert is uncorrelated.
	CorrelationID string `json:"correlationId,omitempty"`

	State State `json:"state"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`

	ResolvedBy      string     `json:"resolvedBy,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`

	SuppressionReason string `json:"suppressionReason,omitempty"`

	// EscalatedAt records when an escalation was initiated for this alert,
	// either at creation hand-off or by the re-evaluation sweep.
	EscalatedAt *time.Time `json:"escalatedAt,omitempty"`
}

// Unresolved reports whether the alert still demands attention.
// Suppressed alerts are terminal and never count as unresolved.
func (a *Alert) Unresolved() bool {
	return a.State == StateActive || a.State == StateAcknowledged
}

// Proposal is an ephemeral alert candidate emitted by a detector, consumed
// immediately by the engine's create pipeline.
type Proposal struct {
	PatientID      string
	Type           string
	Severity       Severity
	Category       Category
	Message        string
	Source         string
	Signal         string
	Value          float64
	ReferenceRange string
}

// MaintenanceWindow suppresses alert creation for a patient while active,
// e.g. during sensor replacement or planned transport.
type MaintenanceWindow struct {
	PatientID string    `json:"patientId"`
	Reason    string    `json:"reason,omitempty"`
	From      time.Time `json:"from"`
	Until     time.Time `json:"until"`
}

// Covers reports whether the window is active at t.
func (w MaintenanceWindow) Covers(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.Until)
}
