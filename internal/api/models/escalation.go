package models

import (
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
)

// EscalationAcknowledgeRequest is the body for
// POST /v1/escalations/{escalationId}/acknowledge.
type EscalationAcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledgedBy" validate:"required"`
}

// EscalationResolveRequest is the body for
// POST /v1/escalations/{escalationId}/resolve.
type EscalationResolveRequest struct {
	ResolvedBy string `json:"resolvedBy" validate:"required"`
	Notes      string `json:"notes,omitempty"`
}

// EscalationList is a list of escalation workflows.
type EscalationList struct {
	Items []*escalation.Escalation `json:"items"`
}
