// Package notify turns alert and escalation events into channel-specific
// delivery jobs processed asynchronously.
package notify

import (
	"time"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
)

// Priority orders notification urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PriorityForSeverity maps alert severity to notification priority.
func PriorityForSeverity(s alerting.Severity) Priority {
	switch s {
	case alerting.SeverityCritical:
		return PriorityUrgent
	case alerting.SeverityHigh:
		return PriorityHigh
	case alerting.SeverityMedium:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// ChannelType identifies one delivery channel variant.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSMS     ChannelType = "sms"
	ChannelPush    ChannelType = "push"
	ChannelWebhook ChannelType = "webhook"
)

// ChannelsForPriority maps priority to the channel set used for delivery.
func ChannelsForPriority(p Priority) []ChannelType {
	switch p {
	case PriorityUrgent:
		return []ChannelType{ChannelEmail, ChannelSMS, ChannelPush}
	case PriorityHigh:
		return []ChannelType{ChannelEmail, ChannelPush}
	default:
		return []ChannelType{ChannelEmail}
	}
}

// Recipient is one configured notification target with a severity filter.
type Recipient struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Email       string              `json:"email,omitempty" yaml:"email,omitempty"`
	Phone       string              `json:"phone,omitempty" yaml:"phone,omitempty"`
	DeviceToken string              `json:"deviceToken,omitempty" yaml:"device_token,omitempty"`
	WebhookURL  string              `json:"webhookUrl,omitempty" yaml:"webhook_url,omitempty"`
	Severities  []alerting.Severity `json:"severities" yaml:"severities"`
}

// Wants reports whether the recipient's severity filter includes s.
func (r Recipient) Wants(s alerting.Severity) bool {
	for _, want := range r.Severities {
		if want == s {
			return true
		}
	}
	return false
}

// JobStatus is the delivery state of a notification job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	// StatusSent means every (channel, recipient) delivery succeeded.
	StatusSent JobStatus = "sent"
	// StatusPartial means some deliveries succeeded and some failed.
	StatusPartial JobStatus = "partial_success"
	// StatusFailed means no delivery succeeded.
	StatusFailed JobStatus = "failed"
)

// DeliveryAttempt records one (channel, recipient) delivery outcome.
type DeliveryAttempt struct {
	Channel     ChannelType `json:"channel"`
	RecipientID string      `json:"recipientId"`
	Time        time.Time   `json:"time"`
	Error       string      `json:"error,omitempty"`
}

// Job is one queued notification.
type Job struct {
	ID         string        `json:"id"`
	AlertID    string        `json:"alertId,omitempty"`
	Subject    string        `json:"subject"`
	Message    string        `json:"message"`
	Priority   Priority      `json:"priority"`
	Channels   []ChannelType `json:"channels"`
	Recipients []Recipient   `json:"recipients"`

	Status      JobStatus         `json:"status"`
	Attempts    []DeliveryAttempt `json:"attempts,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}
