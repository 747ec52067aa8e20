package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Repository errors.
var (
	ErrEscalationNotFound = errors.New("escalation not found")
)

// Repository defines the persistence contract for escalations: an active
// set plus a bounded history of closed workflows.
type Repository interface {
	// Create stores a new active escalation.
	Create(ctx context.Context, e *Escalation) error

	// Get retrieves an active escalation by ID.
	Get(ctx context.Context, id string) (*Escalation, error)

	// GetByAlert retrieves the active escalation attached to an alert.
	GetByAlert(ctx context.Context, alertID string) (*Escalation, error)

	// Update replaces an active escalation.
	Update(ctx context.Context, e *Escalation) error

	// ListActive retrieves every active escalation, oldest first.
	ListActive(ctx context.Context) ([]*Escalation, error)

	// MoveToHistory removes an escalation from the active set and appends
	// it to the history.
	MoveToHistory(ctx context.Context, e *Escalation) error

	// History retrieves up to limit closed escalations, newest first.
	History(ctx context.Context, limit int) ([]*Escalation, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu          sync.RWMutex
	active      map[string]*Escalation
	byAlert     map[string]string
	history     []*Escalation
	historySize int
}

// NewInMemoryRepository creates a new in-memory escalation repository with
// a bounded history.
func NewInMemoryRepository(historySize int) *InMemoryRepository {
	if historySize <= 0 {
		historySize = 1000
	}
	return &InMemoryRepository{
		active:      make(map[string]*Escalation),
		byAlert:     make(map[string]string),
		historySize: historySize,
	}
}

// Create stores a new active escalation.
func (r *InMemoryRepository) Create(_ context.Context, e *Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := clone(e)
	r.active[e.ID] = cpy
	r.byAlert[e.AlertID] = e.ID
	return nil
}

// Get retrieves an active escalation by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.active[id]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	return clone(e), nil
}

// GetByAlert retrieves the active escalation attached to an alert.
func (r *InMemoryRepository) GetByAlert(_ context.Context, alertID string) (*Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAlert[alertID]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	return clone(r.active[id]), nil
}

// Update replaces an active escalation.
func (r *InMemoryRepository) Update(_ context.Context, e *Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[e.ID]; !ok {
		return ErrEscalationNotFound
	}
	r.active[e.ID] = clone(e)
	return nil
}

// ListActive retrieves every active escalation, oldest first.
func (r *InMemoryRepository) ListActive(_ context.Context) ([]*Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Escalation, 0, len(r.active))
	for _, e := range r.active {
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MoveToHistory removes an escalation from the active set and appends it to
// the bounded history.
func (r *InMemoryRepository) MoveToHistory(_ context.Context, e *Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[e.ID]; !ok {
		return ErrEscalationNotFound
	}
	delete(r.active, e.ID)
	delete(r.byAlert, e.AlertID)

	r.history = append(r.history, clone(e))
	if len(r.history) > r.historySize {
		r.history = r.history[len(r.history)-r.historySize:]
	}
	return nil
}

// History retrieves up to limit closed escalations, newest first.
func (r *InMemoryRepository) History(_ context.Context, limit int) ([]*Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.history)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*Escalation, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, clone(r.history[i]))
	}
	return out, nil
}

func clone(e *Escalation) *Escalation {
	cpy := *e
	cpy.Responders = append([]string(nil), e.Responders...)
	cpy.Timeline = append([]TimelineEntry(nil), e.Timeline...)
	return &cpy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
