package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service errors.
var (
	// ErrAlertTerminal is returned when operating on a resolved or
	// suppressed alert that cannot transition further.
	ErrAlertTerminal = errors.New("alert is in a terminal state")
)

// Suppression reasons recorded on suppressed alerts.
const (
	SuppressDuplicate      = "duplicate_within_window"
	SuppressMaintenance    = "maintenance_window"
	SuppressCriticalActive = "critical_alert_active"
)

// Event names published on every alert state change.
const (
	EventAlertCreated      = "alert_created"
	EventAlertSuppressed   = "alert_suppressed"
	EventAlertAcknowledged = "alert_acknowledged"
	EventAlertResolved     = "alert_resolved"
)

// Escalator receives lifecycle hand-offs for alerts that warrant a timed
// responder-assignment workflow.
type Escalator interface {
	Initiate(ctx context.Context, a *Alert) error
	AlertAcknowledged(ctx context.Context, alertID, actor string) error
	AlertResolved(ctx context.Context, alertID, actor, notes string) error
}

// Notifier dispatches alert notifications to configured recipients.
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// EventPublisher fans alert state changes out to live subscribers.
type EventPublisher interface {
	AlertEvent(ctx context.Context, event string, a *Alert)
}

// Policy holds the tunable heuristics of the create pipeline and the
// background sweeps.
type Policy struct {
	// SuppressionWindow suppresses a new alert when an unresolved alert of
	// the same patient and type exists within it. Zero disables duplicate
	// suppression.
	SuppressionWindow time.Duration

	// SuppressLowDuringCritical suppresses low-severity alerts for patients
	// that already have an unresolved critical alert.
	SuppressLowDuringCritical bool

	// MinGroupSize is the number of unresolved same patient+category alerts
	// required before a correlation group forms.
	MinGroupSize int

	// RetentionPeriod keeps resolved alerts queryable before the retention
	// sweep purges them.
	RetentionPeriod time.Duration

	// AutoEscalateAfter escalates unresolved medium-and-above alerts that
	// have not been escalated within it.
	AutoEscalateAfter time.Duration

	// AutoResolveLowAfter resolves unacknowledged low-severity alerts older
	// than it, attributed to "system".
	AutoResolveLowAfter time.Duration
}

// DefaultPolicy returns the default engine policy.
func DefaultPolicy() Policy {
	return Policy{
		SuppressionWindow:         5 * time.Minute,
		SuppressLowDuringCritical: true,
		MinGroupSize:              2,
		RetentionPeriod:           30 * 24 * time.Hour,
		AutoEscalateAfter:         10 * time.Minute,
		AutoResolveLowAfter:       24 * time.Hour,
	}
}

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	Repository Repository
	Policy     Policy
	Logger     zerolog.Logger

	// Optional downstream hand-offs. Nil disables the hand-off.
	Escalator Escalator
	Notifier  Notifier
	Publisher EventPublisher

	// Now is the clock source, defaulting to time.Now.
	Now func() time.Time
}

// Service is the sole authority on the alert lifecycle.
type Service struct {
	repo      Repository
	policy    Policy
	logger    zerolog.Logger
	escalator Escalator
	notifier  Notifier
	publisher EventPublisher
	now       func() time.Time

	// mu serialises the create/acknowledge/resolve pipelines so the
	// suppression and correlation checks are atomic check-then-insert.
	mu sync.Mutex

	windowsMu sync.RWMutex
	windows   map[string][]MaintenanceWindow
}

// NewService creates a new alert engine.
func NewService(cfg ServiceConfig) *Service {
	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo:      cfg.Repository,
		policy:    policy,
		logger:    cfg.Logger,
		escalator: cfg.Escalator,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
		now:       now,
		windows:   make(map[string][]MaintenanceWindow),
	}
}

// CreateFromProposal runs the create pipeline for a detector-emitted proposal.
func (s *Service) CreateFromProposal(ctx context.Context, p Proposal) (*Alert, error) {
	value := p.Value
	return s.Create(ctx, &Alert{
		PatientID:      p.PatientID,
		Type:           p.Type,
		Severity:       p.Severity,
		Category:       p.Category,
		Message:        p.Message,
		Source:         p.Source,
		Signal:         p.Signal,
		Value:          &value,
		ReferenceRange: p.ReferenceRange,
	})
}

// Create validates, deduplicates, correlates, and stores a new alert, then
// hands it off to escalation and notification unless it was suppressed.
// Validation failure rejects the alert with no mutation.
func (s *Service) Create(ctx context.Context, a *Alert) (*Alert, error) {
	if errs := validateAlert(a); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	if a.Category == "" {
		a.Category = CategorySystem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a.ID = "alr_" + uuid.New().String()[:22]
	a.State = StateActive
	a.CreatedAt = now
	a.UpdatedAt = now

	if reason := s.suppressionReason(ctx, a, now); reason != "" {
		a.State = StateSuppressed
		a.SuppressionReason = reason
		if err := s.repo.Create(ctx, a); err != nil {
			return nil, err
		}
		s.logger.Debug().
			Str("alert_id", a.ID).
			Str("patient_id", a.PatientID).
			Str("reason", reason).
			Msg("alert suppressed")
		s.publish(ctx, EventAlertSuppressed, a)
		return a, nil
	}

	s.correlate(ctx, a)

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("alert_id", a.ID).
		Str("patient_id", a.PatientID).
		Str("type", a.Type).
		Str("severity", string(a.Severity)).
		Msg("alert created")

	s.handoff(ctx, a)
	s.publish(ctx, EventAlertCreated, a)
	return a, nil
}

// Acknowledge marks an alert acknowledged by actor and propagates the
// acknowledgement to its correlation group. Repeat calls are idempotent and
// preserve the original acknowledger.
func (s *Service) Acknowledge(ctx context.Context, id, actor string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acknowledgeLocked(ctx, id, actor, true)
}

func (s *Service) acknowledgeLocked(ctx context.Context, id, actor string, propagate bool) (*Alert, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch a.State {
	case StateAcknowledged, StateResolved:
		// Already acknowledged (resolution implies acknowledgement).
		return a, nil
	case StateSuppressed:
		return nil, ErrAlertTerminal
	}

	now := s.now()
	a.State = StateAcknowledged
	a.AcknowledgedBy = actor
	a.AcknowledgedAt = &now
	a.UpdatedAt = now

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("alert_id", a.ID).
		Str("actor", actor).
		Msg("alert acknowledged")

	if s.escalator != nil {
		if err := s.escalator.AlertAcknowledged(ctx, a.ID, actor); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("escalation acknowledgement failed")
		}
	}
	s.publish(ctx, EventAlertAcknowledged, a)

	if propagate && a.CorrelationID != "" {
		s.propagateToGroup(ctx, a, func(member *Alert) {
			_, err := s.acknowledgeLocked(ctx, member.ID, actor, false)
			if err != nil && !errors.Is(err, ErrAlertTerminal) {
				s.logger.Warn().Err(err).Str("alert_id", member.ID).Msg("group acknowledgement failed")
			}
		})
	}
	return a, nil
}

// Resolve marks an alert resolved by actor. An active alert is
// auto-acknowledged on the way. Resolution propagates to the correlation
// group. Repeat calls are idempotent.
func (s *Service) Resolve(ctx context.Context, id, actor, notes string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx, id, actor, notes, true)
}

func (s *Service) resolveLocked(ctx context.Context, id, actor, notes string, propagate bool) (*Alert, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch a.State {
	case StateResolved:
		return a, nil
	case StateSuppressed:
		return nil, ErrAlertTerminal
	}

	now := s.now()
	if a.State == StateActive {
		// Direct ACTIVE -> RESOLVED auto-acknowledges.
		a.AcknowledgedBy = actor
		a.AcknowledgedAt = &now
	}
	a.State = StateResolved
	a.ResolvedBy = actor
	a.ResolvedAt = &now
	a.ResolutionNotes = notes
	a.UpdatedAt = now

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("alert_id", a.ID).
		Str("actor", actor).
		Msg("alert resolved")

	if s.escalator != nil {
		if err := s.escalator.AlertResolved(ctx, a.ID, actor, notes); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("escalation resolution failed")
		}
	}
	s.publish(ctx, EventAlertResolved, a)

	if propagate && a.CorrelationID != "" {
		groupNotes := fmt.Sprintf("resolved with correlated alert %s", a.ID)
		s.propagateToGroup(ctx, a, func(member *Alert) {
			_, err := s.resolveLocked(ctx, member.ID, actor, groupNotes, false)
			if err != nil && !errors.Is(err, ErrAlertTerminal) {
				s.logger.Warn().Err(err).Str("alert_id", member.ID).Msg("group resolution failed")
			}
		})
	}
	return a, nil
}

// Get retrieves an alert by ID.
func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.repo.Get(ctx, id)
}

// Query retrieves alerts matching the filter, newest first.
func (s *Service) Query(ctx context.Context, f Filter) ([]*Alert, error) {
	return s.repo.List(ctx, f)
}

// SetPolicy replaces the engine policy, e.g. on rules file reload.
func (s *Service) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

func (s *Service) currentPolicy() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// AddMaintenanceWindow registers a suppression window for a patient.
func (s *Service) AddMaintenanceWindow(w MaintenanceWindow) {
	s.windowsMu.Lock()
	defer s.windowsMu.Unlock()
	s.windows[w.PatientID] = append(s.windows[w.PatientID], w)
}

// Reevaluate is the periodic sweep over every non-terminal alert. It
// escalates alerts that have gone unhandled past the auto-escalation
// threshold and resolves stale low-severity alerts.
func (s *Service) Reevaluate(ctx context.Context) error {
	alerts, err := s.repo.List(ctx, Filter{Unresolved: true})
	if err != nil {
		return err
	}

	now := s.now()
	policy := s.currentPolicy()
	for _, a := range alerts {
		age := now.Sub(a.CreatedAt)

		if a.Severity == SeverityLow && a.State == StateActive && age > policy.AutoResolveLowAfter {
			if _, err := s.Resolve(ctx, a.ID, "system", "auto-resolved by periodic re-evaluation"); err != nil {
				s.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("auto-resolution failed")
			}
			continue
		}

		if a.EscalatedAt == nil && a.State == StateActive &&
			a.Severity.Rank() >= SeverityMedium.Rank() && age > policy.AutoEscalateAfter {
			s.initiateEscalation(ctx, a)
		}
	}
	return nil
}

// PurgeExpired is the retention sweep removing resolved alerts that have
// aged past the retention period.
func (s *Service) PurgeExpired(ctx context.Context) error {
	cutoff := s.now().Add(-s.currentPolicy().RetentionPeriod)
	removed, err := s.repo.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("purged expired alerts")
	}
	return nil
}

// suppressionReason returns a non-empty reason when the create pipeline
// should suppress the alert.
func (s *Service) suppressionReason(ctx context.Context, a *Alert, now time.Time) string {
	if s.inMaintenance(a.PatientID, now) {
		return SuppressMaintenance
	}

	if s.policy.SuppressionWindow > 0 {
		dupes, err := s.repo.List(ctx, Filter{
			PatientID:  a.PatientID,
			Unresolved: true,
			Since:      now.Add(-s.policy.SuppressionWindow),
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("suppression lookup failed")
			return ""
		}
		for _, d := range dupes {
			if d.Type == a.Type {
				return SuppressDuplicate
			}
		}
	}

	if s.policy.SuppressLowDuringCritical && a.Severity == SeverityLow {
		criticals, err := s.repo.List(ctx, Filter{
			PatientID:  a.PatientID,
			Severity:   SeverityCritical,
			Unresolved: true,
			Limit:      1,
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("suppression lookup failed")
			return ""
		}
		if len(criticals) > 0 {
			return SuppressCriticalActive
		}
	}
	return ""
}

// correlate joins the alert to a correlation group once enough unresolved
// alerts share its patient and category. Members without a group id yet are
// backfilled.
func (s *Service) correlate(ctx context.Context, a *Alert) {
	peers, err := s.repo.List(ctx, Filter{
		PatientID:  a.PatientID,
		Category:   a.Category,
		Unresolved: true,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("correlation lookup failed")
		return
	}
	if len(peers)+1 < s.policy.MinGroupSize {
		return
	}

	groupID := ""
	for _, p := range peers {
		if p.CorrelationID != "" {
			groupID = p.CorrelationID
			break
		}
	}
	if groupID == "" {
		groupID = "grp_" + uuid.New().String()[:22]
	}
	a.CorrelationID = groupID

	for _, p := range peers {
		if p.CorrelationID != "" {
			continue
		}
		p.CorrelationID = groupID
		p.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, p); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", p.ID).Msg("correlation backfill failed")
		}
	}
}

// handoff forwards a freshly stored alert to escalation and notification.
func (s *Service) handoff(ctx context.Context, a *Alert) {
	if a.Severity.Rank() >= SeverityHigh.Rank() {
		s.initiateEscalation(ctx, a)
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, a); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("notification hand-off failed")
		}
	}
}

func (s *Service) initiateEscalation(ctx context.Context, a *Alert) {
	if s.escalator == nil {
		return
	}
	if err := s.escalator.Initiate(ctx, a); err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("escalation hand-off failed")
		return
	}
	now := s.now()
	a.EscalatedAt = &now
	a.UpdatedAt = now
	if err := s.repo.Update(ctx, a); err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("escalation marker update failed")
	}
}

func (s *Service) propagateToGroup(ctx context.Context, origin *Alert, apply func(*Alert)) {
	members, err := s.repo.List(ctx, Filter{
		PatientID:  origin.PatientID,
		Category:   origin.Category,
		Unresolved: true,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("group_id", origin.CorrelationID).Msg("group lookup failed")
		return
	}
	for _, m := range members {
		if m.ID == origin.ID || m.CorrelationID != origin.CorrelationID {
			continue
		}
		apply(m)
	}
}

func (s *Service) inMaintenance(patientID string, now time.Time) bool {
	s.windowsMu.RLock()
	defer s.windowsMu.RUnlock()
	for _, w := range s.windows[patientID] {
		if w.Covers(now) {
			return true
		}
	}
	return false
}

func (s *Service) publish(ctx context.Context, event string, a *Alert) {
	if s.publisher != nil {
		s.publisher.AlertEvent(ctx, event, a)
	}
}

// validateAlert checks the required fields of a new alert.
func validateAlert(a *Alert) []FieldError {
	var errs []FieldError
	if a.PatientID == "" {
		errs = append(errs, FieldError{Field: "patientId", Message: "is required"})
	}
	if a.Type == "" {
		errs = append(errs, FieldError{Field: "type", Message: "is required"})
	}
	if !a.Severity.Valid() {
		errs = append(errs, FieldError{Field: "severity", Message: "must be one of low, medium, high, critical"})
	}
	if a.Message == "" {
		errs = append(errs, FieldError{Field: "message", Message: "is required"})
	}
	if a.Category != "" && !a.Category.Valid() {
		errs = append(errs, FieldError{Field: "category", Message: "is not a known category"})
	}
	return errs
}

// FieldError describes a validation failure on a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates the field errors that rejected a create call.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
