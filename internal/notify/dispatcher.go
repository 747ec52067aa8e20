package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
)

// Dispatcher errors.
var (
	// ErrQueueFull is returned when the job queue cannot accept more work.
	ErrQueueFull = errors.New("notification queue is full")

	// ErrNoRecipients is returned when no configured recipient's severity
	// filter matches the alert.
	ErrNoRecipients = errors.New("no recipients match")

	// ErrJobNotFound is returned when querying an unknown job.
	ErrJobNotFound = errors.New("notification job not found")
)

// DispatcherConfig holds configuration for creating a Dispatcher.
type DispatcherConfig struct {
	// Channels are the available delivery variants.
	Channels []Channel

	// Recipients is the configured notification directory.
	Recipients []Recipient

	// QueueSize bounds the pending job queue. Default: 256.
	QueueSize int

	// HistorySize bounds the retained delivery history. Default: 500.
	HistorySize int

	Logger zerolog.Logger

	// Metrics records delivery instrumentation. Optional.
	Metrics *DeliveryMetrics

	// Now is the clock source, defaulting to time.Now.
	Now func() time.Time
}

// Dispatcher queues notification jobs and processes them asynchronously.
// Each (channel, recipient) pair is delivered independently; a channel
// failure is counted, never aborting the rest of the job. There is no
// automatic retry; retry is an explicit re-notify.
type Dispatcher struct {
	channels    map[ChannelType]Channel
	queue       chan *Job
	historySize int
	logger      zerolog.Logger
	metrics     *DeliveryMetrics
	now         func() time.Time

	mu         sync.RWMutex
	recipients []Recipient
	jobs       map[string]*Job
	history    []*Job
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 500
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	channels := make(map[ChannelType]Channel, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels[ch.Type()] = ch
	}

	return &Dispatcher{
		channels:    channels,
		queue:       make(chan *Job, queueSize),
		historySize: historySize,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		now:         now,
		recipients:  append([]Recipient(nil), cfg.Recipients...),
		jobs:        make(map[string]*Job),
	}
}

// Notify builds and queues a notification job for an alert. Recipients are
// every configured user whose severity filter includes the alert's
// severity; priority and channels derive from the severity.
func (d *Dispatcher) Notify(_ context.Context, a *alerting.Alert) (*Job, error) {
	recipients := d.recipientsForSeverity(a.Severity)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w severity %s", ErrNoRecipients, a.Severity)
	}

	priority := PriorityForSeverity(a.Severity)
	job := d.newJob(Job{
		AlertID:    a.ID,
		Subject:    fmt.Sprintf("[%s] %s alert for patient %s", priority, a.Severity, a.PatientID),
		Message:    a.Message,
		Priority:   priority,
		Channels:   ChannelsForPriority(priority),
		Recipients: recipients,
	})
	err := d.enqueue(job)
	return d.snapshot(job), err
}

// NotifyCustom builds and queues a job with explicit recipients. Nil
// channels and empty priority fall back to the priority-derived defaults.
func (d *Dispatcher) NotifyCustom(_ context.Context, subject, message string, recipients []Recipient, channels []ChannelType, priority Priority) (*Job, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if len(channels) == 0 {
		channels = ChannelsForPriority(priority)
	}

	job := d.newJob(Job{
		Subject:    subject,
		Message:    message,
		Priority:   priority,
		Channels:   channels,
		Recipients: recipients,
	})
	err := d.enqueue(job)
	return d.snapshot(job), err
}

// NotifyResponders queues a notice to the named on-call responders found in
// the recipient directory. Unknown responders are skipped.
func (d *Dispatcher) NotifyResponders(ctx context.Context, responders []string, message string, severity alerting.Severity) error {
	d.mu.RLock()
	var recipients []Recipient
	for _, id := range responders {
		for _, r := range d.recipients {
			if r.ID == id {
				recipients = append(recipients, r)
				break
			}
		}
	}
	d.mu.RUnlock()

	if len(recipients) == 0 {
		d.logger.Warn().Strs("responders", responders).Msg("no directory entries for responders")
		return nil
	}

	_, err := d.NotifyCustom(ctx, "Escalation notice", message, recipients, nil, PriorityForSeverity(severity))
	return err
}

// Run drains the job queue, blocking on empty-queue wait, until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			d.process(ctx, job)
		}
	}
}

// Job retrieves a queued or completed job by ID.
func (d *Dispatcher) Job(id string) (*Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	job, ok := d.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// History retrieves up to limit completed jobs, newest first.
func (d *Dispatcher) History(limit int) []*Job {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := len(d.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Job, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, cloneJob(d.history[i]))
	}
	return out
}

// SetRecipients replaces the recipient directory, e.g. on config reload.
func (d *Dispatcher) SetRecipients(recipients []Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recipients = append([]Recipient(nil), recipients...)
}

// process delivers one job across its channel and recipient matrix. The
// job pointer is shared with concurrent Job and History readers, so every
// mutation is published under d.mu; Channels, Recipients, and the
// identity fields are immutable after newJob and read freely.
func (d *Dispatcher) process(ctx context.Context, job *Job) {
	d.setStatus(job, StatusProcessing)

	succeeded, failed := 0, 0
	for _, chType := range job.Channels {
		ch, ok := d.channels[chType]
		if !ok {
			d.logger.Warn().Str("channel", string(chType)).Msg("channel not configured")
			failed += len(job.Recipients)
			continue
		}
		for _, rcpt := range job.Recipients {
			started := d.now()
			err := d.deliver(ctx, ch, job, rcpt)
			d.metrics.RecordDelivery(chType, job.Priority, d.now().Sub(started), err)
			attempt := DeliveryAttempt{
				Channel:     chType,
				RecipientID: rcpt.ID,
				Time:        d.now(),
			}
			if err != nil {
				attempt.Error = err.Error()
				failed++
				d.logger.Warn().Err(err).
					Str("job_id", job.ID).
					Str("channel", string(chType)).
					Str("recipient_id", rcpt.ID).
					Msg("delivery failed")
			} else {
				succeeded++
			}
			d.appendAttempt(job, attempt)
		}
	}

	var status JobStatus
	switch {
	case failed == 0:
		status = StatusSent
	case succeeded > 0:
		status = StatusPartial
	default:
		status = StatusFailed
	}

	d.complete(job, status)
	d.metrics.RecordJob(status)

	d.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("notification job completed")
}

// deliver invokes one channel handler, containing panics so a broken
// handler only fails its own (channel, recipient) pair.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, job *Job, rcpt Recipient) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel handler panic: %v", r)
		}
	}()
	return ch.Deliver(ctx, job, rcpt)
}

func (d *Dispatcher) newJob(template Job) *Job {
	job := template
	job.ID = "ntf_" + uuid.New().String()[:22]
	job.Status = StatusPending
	job.CreatedAt = d.now()

	d.mu.Lock()
	d.jobs[job.ID] = &job
	d.mu.Unlock()
	return &job
}

func (d *Dispatcher) enqueue(job *Job) error {
	select {
	case d.queue <- job:
		return nil
	default:
		d.setStatus(job, StatusFailed)
		return ErrQueueFull
	}
}

func (d *Dispatcher) setStatus(job *Job, status JobStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job.Status = status
	d.jobs[job.ID] = job
}

func (d *Dispatcher) appendAttempt(job *Job, attempt DeliveryAttempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job.Attempts = append(job.Attempts, attempt)
}

// complete records the final status and moves the job into history.
func (d *Dispatcher) complete(job *Job, status JobStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()

	job.Status = status
	now := d.now()
	job.CompletedAt = &now

	d.jobs[job.ID] = job
	d.history = append(d.history, job)
	if len(d.history) > d.historySize {
		d.history = d.history[len(d.history)-d.historySize:]
	}
}

// snapshot returns a caller-owned copy of a live job.
func (d *Dispatcher) snapshot(job *Job) *Job {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneJob(job)
}

// cloneJob copies a job, detaching the attempt log. Callers must hold
// d.mu at least for reading.
func cloneJob(job *Job) *Job {
	cpy := *job
	cpy.Attempts = append([]DeliveryAttempt(nil), job.Attempts...)
	return &cpy
}

func (d *Dispatcher) recipientsForSeverity(s alerting.Severity) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Recipient
	for _, r := range d.recipients {
		if r.Wants(s) {
			out = append(out, r)
		}
	}
	return out
}

// EngineNotifier adapts the dispatcher to the alert engine's hand-off
// hook, discarding the job handle. A no-recipient match is not an error
// from the engine's point of view.
type EngineNotifier struct {
	D *Dispatcher
}

// Notify enqueues a notification job for the alert.
func (n EngineNotifier) Notify(ctx context.Context, a *alerting.Alert) error {
	_, err := n.D.Notify(ctx, a)
	if errors.Is(err, ErrNoRecipients) {
		return nil
	}
	return err
}
