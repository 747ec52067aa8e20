// Package escalation runs the timed multi-level responder-assignment
// workflow for unresolved, high-severity alerts.
package escalation

import (
	"time"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
)

// State is the lifecycle state of an escalation.
//
// PENDING -> IN_PROGRESS -> {ACKNOWLEDGED, ESCALATED} -> RESOLVED, where
// ESCALATED re-enters IN_PROGRESS at the next level. RESOLVED is terminal.
type State string

const (
	StatePending      State = "pending"
	StateInProgress   State = "in_progress"
	StateAcknowledged State = "acknowledged"
	StateEscalated    State = "escalated"
	StateResolved     State = "resolved"
)

// Level is one rung of an escalation policy: a responder role and how long
// to wait at this level before auto-advancing. A zero Timeout marks the
// terminal level, which requires human action.
type Level struct {
	Level   int           `json:"level" yaml:"level"`
	Role    string        `json:"role" yaml:"role"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Policy is an ordered list of levels selected by alert severity.
type Policy struct {
	Name   string  `json:"name" yaml:"name"`
	Levels []Level `json:"levels" yaml:"levels"`
}

// Terminal reports whether level (1-based) is the policy's last rung.
func (p Policy) Terminal(level int) bool {
	return level >= len(p.Levels)
}

// At returns the 1-based level definition, clamped to the policy bounds.
func (p Policy) At(level int) Level {
	if level < 1 {
		level = 1
	}
	if level > len(p.Levels) {
		level = len(p.Levels)
	}
	return p.Levels[level-1]
}

// DefaultPolicies returns the severity-selected escalation policies. The
// last level of each policy carries no timeout.
func DefaultPolicies() map[alerting.Severity]Policy {
	return map[alerting.Severity]Policy{
		alerting.SeverityCritical: {
			Name: "critical",
			Levels: []Level{
				{Level: 1, Role: "nurse", Timeout: 5 * time.Minute},
				{Level: 2, Role: "charge_nurse", Timeout: 10 * time.Minute},
				{Level: 3, Role: "physician", Timeout: 15 * time.Minute},
				{Level: 4, Role: "medical_director"},
			},
		},
		alerting.SeverityHigh: {
			Name: "high",
			Levels: []Level{
				{Level: 1, Role: "nurse", Timeout: 15 * time.Minute},
				{Level: 2, Role: "charge_nurse", Timeout: 30 * time.Minute},
				{Level: 3, Role: "physician"},
			},
		},
		alerting.SeverityMedium: {
			Name: "medium",
			Levels: []Level{
				{Level: 1, Role: "nurse", Timeout: 30 * time.Minute},
				{Level: 2, Role: "charge_nurse"},
			},
		},
	}
}

// TimelineEntry records one chronological event in an escalation's life.
type TimelineEntry struct {
	Time   time.Time `json:"time"`
	Event  string    `json:"event"`
	Level  int       `json:"level"`
	Actor  string    `json:"actor,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Escalation is the one-to-one timed workflow attached to an alert once
// initiated.
type Escalation struct {
	ID        string            `json:"id"`
	AlertID   string            `json:"alertId"`
	PatientID string            `json:"patientId"`
	Severity  alerting.Severity `json:"severity"`

	PolicyName string `json:"policyName"`
	// Level is the current 1-based policy level. It only increases except
	// at resolution.
	Level int   `json:"level"`
	State State `json:"state"`

	// Responders are the identities currently assigned at this level.
	Responders []string        `json:"responders"`
	Timeline   []TimelineEntry `json:"timeline"`

	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LevelStartedAt time.Time `json:"levelStartedAt"`

	AcknowledgedBy string `json:"acknowledgedBy,omitempty"`

	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	// TimedOut marks force-resolution by the global ceiling sweep.
	TimedOut bool `json:"timedOut,omitempty"`
}

// Active reports whether the escalation is still in the active set.
func (e *Escalation) Active() bool {
	return e.State != StateResolved
}
