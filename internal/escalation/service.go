package escalation

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

// Service errors.
var (
	// ErrNoPolicy is returned when no policy is configured for an alert's
	// severity.
	ErrNoPolicy = errors.New("no escalation policy for severity")

	// ErrEscalationClosed is returned when operating on a resolved
	// escalation.
	ErrEscalationClosed = errors.New("escalation already resolved")
)

// Event names published on every escalation state change.
const (
	EventInitiated    = "escalation_initiated"
	EventAdvanced     = "escalation_advanced"
	EventAcknowledged = "escalation_acknowledged"
	EventResolved     = "escalation_resolved"
)

// EventPublisher fans escalation state changes out to live subscribers.
type EventPublisher interface {
	EscalationEvent(ctx context.Context, event string, e *Escalation)
}

// ResponderNotifier delivers notices to the responders assigned at a level.
type ResponderNotifier interface {
	NotifyResponders(ctx context.Context, responders []string, message string, severity alerting.Severity) error
}

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	Repository Repository

	// Policies maps alert severity to a policy. Nil falls back to
	// DefaultPolicies.
	Policies map[alerting.Severity]Policy

	// Pools maps responder role to the identities on call for it.
	Pools map[string][]string

	// Ceiling force-resolves any escalation older than it regardless of
	// level. Defaults to 24h.
	Ceiling time.Duration

	Logger    zerolog.Logger
	Publisher EventPublisher
	Notifier  ResponderNotifier

	// Now is the clock source, defaulting to time.Now.
	Now func() time.Time
}

// DefaultPools returns a minimal role to on-call responder mapping.
func DefaultPools() map[string][]string {
	return map[string][]string{
		"nurse":            {"nurse_1", "nurse_2"},
		"charge_nurse":     {"charge_nurse_1"},
		"physician":        {"physician_1", "physician_2"},
		"medical_director": {"medical_director_1"},
	}
}

// Service manages the timed escalation workflows.
type Service struct {
	repo      Repository
	policies  map[alerting.Severity]Policy
	pools     map[string][]string
	ceiling   time.Duration
	logger    zerolog.Logger
	publisher EventPublisher
	notifier  ResponderNotifier
	now       func() time.Time

	mu sync.Mutex
}

// NewService creates a new escalation manager.
func NewService(cfg ServiceConfig) *Service {
	policies := cfg.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	pools := cfg.Pools
	if pools == nil {
		pools = DefaultPools()
	}
	ceiling := cfg.Ceiling
	if ceiling == 0 {
		ceiling = 24 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo:      cfg.Repository,
		policies:  policies,
		pools:     pools,
		ceiling:   ceiling,
		logger:    cfg.Logger,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		now:       now,
	}
}

// SetRules replaces the policies and responder pools, e.g. on rules file
// reload. Active escalations keep the policy they started under by name
// lookup, falling back to the severity default.
func (s *Service) SetRules(policies map[alerting.Severity]Policy, pools map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if policies != nil {
		s.policies = policies
	}
	if pools != nil {
		s.pools = pools
	}
}

// Initiate starts the escalation workflow for an alert, assigning level-1
// responders under the policy selected by severity. An alert that already
// has an active escalation is left untouched.
func (s *Service) Initiate(ctx context.Context, a *alerting.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.GetByAlert(ctx, a.ID); err == nil {
		return nil
	}

	policy, ok := s.policies[a.Severity]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPolicy, a.Severity)
	}

	now := s.now()
	level := policy.At(1)
	e := &Escalation{
		ID:             "esc_" + uuid.New().String()[:22],
		AlertID:        a.ID,
		PatientID:      a.PatientID,
		Severity:       a.Severity,
		PolicyName:     policy.Name,
		Level:          1,
		State:          StatePending,
		Responders:     s.responders(level.Role),
		CreatedAt:      now,
		UpdatedAt:      now,
		LevelStartedAt: now,
	}
	e.Timeline = append(e.Timeline, TimelineEntry{
		Time:   now,
		Event:  "initiated",
		Level:  1,
		Detail: fmt.Sprintf("policy %s, role %s", policy.Name, level.Role),
	})

	if err := s.repo.Create(ctx, e); err != nil {
		return err
	}

	s.logger.Info().
		Str("escalation_id", e.ID).
		Str("alert_id", a.ID).
		Str("policy", policy.Name).
		Strs("responders", e.Responders).
		Msg("escalation initiated")

	s.notify(ctx, e, fmt.Sprintf("Escalation started for alert %s (%s): %s", a.ID, a.Severity, a.Message))

	// Level-1 responders are assigned and notified; the level timer runs
	// from here.
	e.State = StateInProgress
	if err := s.repo.Update(ctx, e); err != nil {
		return err
	}
	s.publish(ctx, EventInitiated, e)
	return nil
}

// Acknowledge engages a responder with the escalation without closing it.
// An acknowledged escalation no longer auto-advances.
func (s *Service) Acknowledge(ctx context.Context, id, actor string) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acknowledgeLocked(ctx, id, actor)
}

func (s *Service) acknowledgeLocked(ctx context.Context, id, actor string) (*Escalation, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.State == StateAcknowledged {
		return e, nil
	}

	now := s.now()
	e.State = StateAcknowledged
	e.AcknowledgedBy = actor
	e.UpdatedAt = now
	e.Timeline = append(e.Timeline, TimelineEntry{
		Time: now, Event: "acknowledged", Level: e.Level, Actor: actor,
	})

	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("escalation_id", e.ID).
		Str("actor", actor).
		Msg("escalation acknowledged")
	s.publish(ctx, EventAcknowledged, e)
	return e, nil
}

// Resolve closes the escalation and moves it from the active set to history.
func (s *Service) Resolve(ctx context.Context, id, actor, notes string) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx, id, actor, notes, false)
}

func (s *Service) resolveLocked(ctx context.Context, id, actor, notes string, timedOut bool) (*Escalation, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e.State = StateResolved
	e.ResolvedBy = actor
	e.ResolvedAt = &now
	e.Notes = notes
	e.TimedOut = timedOut
	e.UpdatedAt = now

	event := "resolved"
	if timedOut {
		event = "timed_out"
	}
	e.Timeline = append(e.Timeline, TimelineEntry{
		Time: now, Event: event, Level: e.Level, Actor: actor, Detail: notes,
	})

	if err := s.repo.MoveToHistory(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("escalation_id", e.ID).
		Str("actor", actor).
		Bool("timed_out", timedOut).
		Msg("escalation resolved")
	s.publish(ctx, EventResolved, e)
	return e, nil
}

// Advance moves the escalation to its next policy level, re-assigning
// responders. At the terminal level the escalation stays put.
func (s *Service) Advance(ctx context.Context, id, reason string) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx, id, reason)
}

func (s *Service) advanceLocked(ctx context.Context, id, reason string) (*Escalation, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.State == StateResolved {
		return nil, ErrEscalationClosed
	}

	policy := s.policyFor(e)
	if policy.Terminal(e.Level) {
		// Last level has no timeout; only human action closes it.
		return e, nil
	}

	now := s.now()
	e.Level++
	level := policy.At(e.Level)
	e.State = StateEscalated
	e.UpdatedAt = now
	e.Timeline = append(e.Timeline,
		TimelineEntry{Time: now, Event: "escalated", Level: e.Level, Detail: reason},
	)
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	// Responder handoff complete; re-enter the timed phase at the new level.
	e.Responders = s.responders(level.Role)
	e.State = StateInProgress
	e.LevelStartedAt = now
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("escalation_id", e.ID).
		Int("level", e.Level).
		Str("role", level.Role).
		Str("reason", reason).
		Msg("escalation advanced")

	s.notify(ctx, e, fmt.Sprintf("Escalation for alert %s advanced to level %d (%s)", e.AlertID, e.Level, level.Role))
	s.publish(ctx, EventAdvanced, e)
	return e, nil
}

// AlertAcknowledged propagates an alert acknowledgement to its escalation.
// Missing escalations are not an error: not every alert escalates.
func (s *Service) AlertAcknowledged(ctx context.Context, alertID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.repo.GetByAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, ErrEscalationNotFound) {
			return nil
		}
		return err
	}
	_, err = s.acknowledgeLocked(ctx, e.ID, actor)
	return err
}

// AlertResolved propagates an alert resolution to its escalation.
func (s *Service) AlertResolved(ctx context.Context, alertID, actor, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.repo.GetByAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, ErrEscalationNotFound) {
			return nil
		}
		return err
	}
	_, err = s.resolveLocked(ctx, e.ID, actor, notes, false)
	return err
}

// Get retrieves an active escalation.
func (s *Service) Get(ctx context.Context, id string) (*Escalation, error) {
	return s.repo.Get(ctx, id)
}

// ListActive retrieves every active escalation, oldest first.
func (s *Service) ListActive(ctx context.Context) ([]*Escalation, error) {
	return s.repo.ListActive(ctx)
}

// History retrieves closed escalations, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*Escalation, error) {
	return s.repo.History(ctx, limit)
}

// Sweep is the periodic advancement pass. It force-resolves escalations
// older than the global ceiling, then advances any in-progress escalation
// whose current level timeout has elapsed. Acknowledged escalations do not
// advance.
func (s *Service) Sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, e := range active {
		if now.Sub(e.CreatedAt) > s.ceiling {
			if _, err := s.resolveLocked(ctx, e.ID, "system", "escalation ceiling exceeded", true); err != nil {
				s.logger.Warn().Err(err).Str("escalation_id", e.ID).Msg("ceiling resolution failed")
			}
			continue
		}

		if e.State != StateInProgress {
			continue
		}
		level := s.policyFor(e).At(e.Level)
		if level.Timeout == 0 || now.Sub(e.LevelStartedAt) < level.Timeout {
			continue
		}
		if _, err := s.advanceLocked(ctx, e.ID, "level timeout elapsed"); err != nil {
			s.logger.Warn().Err(err).Str("escalation_id", e.ID).Msg("timed advancement failed")
		}
	}
	return nil
}

func (s *Service) policyFor(e *Escalation) Policy {
	if p, ok := s.policies[e.Severity]; ok {
		return p
	}
	// Policy set may have been reloaded without this severity; keep the
	// escalation at its current level.
	return Policy{Name: e.PolicyName, Levels: make([]Level, e.Level)}
}

func (s *Service) responders(role string) []string {
	pool := s.pools[role]
	if len(pool) == 0 {
		return []string{role + "_on_call"}
	}
	return append([]string(nil), pool...)
}

func (s *Service) notify(ctx context.Context, e *Escalation, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyResponders(ctx, e.Responders, message, e.Severity); err != nil {
		s.logger.Warn().Err(err).Str("escalation_id", e.ID).Msg("responder notification failed")
	}
}

func (s *Service) publish(ctx context.Context, event string, e *Escalation) {
	if s.publisher != nil {
		s.publisher.EscalationEvent(ctx, event, e)
	}
}
