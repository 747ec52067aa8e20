package escalation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
)

type captureNotifier struct {
	notices [][]string
}

func (c *captureNotifier) NotifyResponders(_ context.Context, responders []string, _ string, _ alerting.Severity) error {
	c.notices = append(c.notices, responders)
	return nil
}

type captureEvents struct {
	events []string
}

func (c *captureEvents) EscalationEvent(_ context.Context, event string, _ *escalation.Escalation) {
	c.events = append(c.events, event)
}

type managerFixture struct {
	svc      *escalation.Service
	notifier *captureNotifier
	events   *captureEvents
	clock    *time.Time
}

func newManager() *managerFixture {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f := &managerFixture{
		notifier: &captureNotifier{},
		events:   &captureEvents{},
		clock:    &now,
	}
	f.svc = escalation.NewService(escalation.ServiceConfig{
		Repository: escalation.NewInMemoryRepository(0),
		Logger:     zerolog.Nop(),
		Publisher:  f.events,
		Notifier:   f.notifier,
		Now:        func() time.Time { return *f.clock },
	})
	return f
}

func (f *managerFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func criticalAlert(id string) *alerting.Alert {
	return &alerting.Alert{
		ID:        id,
		PatientID: "pat_1",
		Type:      "bradycardia",
		Severity:  alerting.SeverityCritical,
		Message:   "heart_rate 35 below normal range (60-100 bpm)",
	}
}

func (f *managerFixture) activeEscalation(t *testing.T) *escalation.Escalation {
	t.Helper()
	active, err := f.svc.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active escalation, got %d", len(active))
	}
	return active[0]
}

func TestService_Initiate(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	e := f.activeEscalation(t)
	if e.Level != 1 {
		t.Errorf("expected level 1, got %d", e.Level)
	}
	if e.State != escalation.StateInProgress {
		t.Errorf("expected in_progress, got %s", e.State)
	}
	if len(e.Responders) == 0 || e.Responders[0] != "nurse_1" {
		t.Errorf("expected the nurse pool assigned, got %v", e.Responders)
	}
	if len(f.notifier.notices) != 1 {
		t.Errorf("expected 1 responder notice, got %d", len(f.notifier.notices))
	}
	if len(f.events.events) != 1 || f.events.events[0] != escalation.EventInitiated {
		t.Errorf("expected initiated event, got %v", f.events.events)
	}
}

func TestService_Initiate_IdempotentPerAlert(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("repeat initiate failed: %v", err)
	}

	active, _ := f.svc.ListActive(ctx)
	if len(active) != 1 {
		t.Fatalf("expected a single escalation per alert, got %d", len(active))
	}
	if len(f.notifier.notices) != 1 {
		t.Errorf("expected no duplicate responder notice, got %d", len(f.notifier.notices))
	}
}

func TestService_Initiate_NoPolicy(t *testing.T) {
	f := newManager()

	a := criticalAlert("alr_1")
	a.Severity = alerting.SeverityLow
	err := f.svc.Initiate(context.Background(), a)
	if !errors.Is(err, escalation.ErrNoPolicy) {
		t.Fatalf("expected ErrNoPolicy, got %v", err)
	}
}

func TestService_Sweep_AdvancesOnTimeout(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	// The critical policy waits 5 minutes at level 1.
	f.advance(6 * time.Minute)
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	e := f.activeEscalation(t)
	if e.Level != 2 {
		t.Fatalf("expected level 2 after timeout, got %d", e.Level)
	}
	if e.Responders[0] != "charge_nurse_1" {
		t.Errorf("expected the charge nurse pool, got %v", e.Responders)
	}

	// A second sweep before the level-2 timeout changes nothing.
	f.advance(time.Minute)
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if f.activeEscalation(t).Level != 2 {
		t.Error("expected no advancement before the level timeout")
	}
}

func TestService_Sweep_AcknowledgedDoesNotAdvance(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	e := f.activeEscalation(t)
	if _, err := f.svc.Acknowledge(ctx, e.ID, "nurse_1"); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}

	f.advance(time.Hour)
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	got := f.activeEscalation(t)
	if got.Level != 1 {
		t.Errorf("expected an acknowledged escalation to hold its level, got %d", got.Level)
	}
}

func TestService_Sweep_TerminalLevelHolds(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	// Walk through every timed level of the critical policy.
	for _, wait := range []time.Duration{6 * time.Minute, 11 * time.Minute, 16 * time.Minute} {
		f.advance(wait)
		if err := f.svc.Sweep(ctx); err != nil {
			t.Fatalf("sweep failed: %v", err)
		}
	}
	e := f.activeEscalation(t)
	if e.Level != 4 {
		t.Fatalf("expected the terminal level 4, got %d", e.Level)
	}

	// The terminal level has no timeout; it never auto-advances or closes.
	f.advance(2 * time.Hour)
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	e = f.activeEscalation(t)
	if e.Level != 4 || e.State != escalation.StateInProgress {
		t.Errorf("expected the escalation held at the terminal level, got level=%d state=%s", e.Level, e.State)
	}
}

func TestService_Sweep_CeilingForceResolves(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	f.advance(25 * time.Hour)
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	active, _ := f.svc.ListActive(ctx)
	if len(active) != 0 {
		t.Fatalf("expected the ceiling to close the escalation, got %d active", len(active))
	}
	history, err := f.svc.History(ctx, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 closed escalation, got %d", len(history))
	}
	if !history[0].TimedOut || history[0].ResolvedBy != "system" {
		t.Errorf("expected a system timeout resolution, got %+v", history[0])
	}
}

func TestService_Resolve_MovesToHistory(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	e := f.activeEscalation(t)

	resolved, err := f.svc.Resolve(ctx, e.ID, "physician_1", "handled at bedside")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.State != escalation.StateResolved || resolved.TimedOut {
		t.Errorf("unexpected resolution %+v", resolved)
	}

	if _, err := f.svc.Get(ctx, e.ID); !errors.Is(err, escalation.ErrEscalationNotFound) {
		t.Errorf("expected the escalation out of the active set, got %v", err)
	}
	history, _ := f.svc.History(ctx, 0)
	if len(history) != 1 {
		t.Errorf("expected the escalation in history, got %d entries", len(history))
	}
}

func TestService_AlertHooks(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	// Hooks for alerts without an escalation are no-ops.
	if err := f.svc.AlertAcknowledged(ctx, "alr_unknown", "nurse_1"); err != nil {
		t.Fatalf("expected nil for unknown alert, got %v", err)
	}
	if err := f.svc.AlertResolved(ctx, "alr_unknown", "nurse_1", ""); err != nil {
		t.Fatalf("expected nil for unknown alert, got %v", err)
	}

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	if err := f.svc.AlertAcknowledged(ctx, "alr_1", "nurse_2"); err != nil {
		t.Fatalf("alert acknowledged hook failed: %v", err)
	}
	e := f.activeEscalation(t)
	if e.State != escalation.StateAcknowledged || e.AcknowledgedBy != "nurse_2" {
		t.Errorf("expected acknowledgement to propagate, got %+v", e)
	}

	if err := f.svc.AlertResolved(ctx, "alr_1", "nurse_2", "alert resolved"); err != nil {
		t.Fatalf("alert resolved hook failed: %v", err)
	}
	active, _ := f.svc.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("expected resolution to close the escalation, got %d active", len(active))
	}
}

func TestService_Timeline(t *testing.T) {
	f := newManager()
	ctx := context.Background()

	if err := f.svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	f.advance(6 * time.Minute)
	if err := f.svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	e := f.activeEscalation(t)
	if len(e.Timeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(e.Timeline))
	}
	if e.Timeline[0].Event != "initiated" || e.Timeline[1].Event != "escalated" {
		t.Errorf("unexpected timeline %+v", e.Timeline)
	}
}

// recordingRepository records the state carried across each persistence
// call, exposing the transitions the service routes through.
type recordingRepository struct {
	escalation.Repository
	states []escalation.State
}

func (r *recordingRepository) Create(ctx context.Context, e *escalation.Escalation) error {
	r.states = append(r.states, e.State)
	return r.Repository.Create(ctx, e)
}

func (r *recordingRepository) Update(ctx context.Context, e *escalation.Escalation) error {
	r.states = append(r.states, e.State)
	return r.Repository.Update(ctx, e)
}

func TestService_StateMachineTransitions(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &recordingRepository{Repository: escalation.NewInMemoryRepository(0)}
	svc := escalation.NewService(escalation.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	})
	ctx := context.Background()

	if err := svc.Initiate(ctx, criticalAlert("alr_1")); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	now = now.Add(6 * time.Minute)
	if err := svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	want := []escalation.State{
		escalation.StatePending,
		escalation.StateInProgress,
		escalation.StateEscalated,
		escalation.StateInProgress,
	}
	if len(repo.states) != len(want) {
		t.Fatalf("expected %d persisted transitions, got %v", len(want), repo.states)
	}
	for i, state := range want {
		if repo.states[i] != state {
			t.Errorf("transition %d: expected %s, got %s", i, state, repo.states[i])
		}
	}

	active, err := svc.ListActive(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected 1 active escalation, got %v (%v)", active, err)
	}
	if active[0].State != escalation.StateInProgress || active[0].Level != 2 {
		t.Errorf("expected level 2 in_progress after handoff, got level %d %s", active[0].Level, active[0].State)
	}
}
