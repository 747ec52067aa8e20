package alerting

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository. It is the
// default system of record; production should inject PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		alerts: make(map[string]*Alert),
	}
}

// Create stores a new alert.
func (r *InMemoryRepository) Create(_ context.Context, a *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *a
	r.alerts[a.ID] = &cpy
	return nil
}

// Get retrieves an alert by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}

	cpy := *a
	return &cpy, nil
}

// Update replaces a stored alert.
func (r *InMemoryRepository) Update(_ context.Context, a *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[a.ID]; !ok {
		return ErrAlertNotFound
	}

	cpy := *a
	r.alerts[a.ID] = &cpy
	return nil
}

// List retrieves alerts matching the filter, newest first.
func (r *InMemoryRepository) List(_ context.Context, f Filter) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.alerts {
		if !matches(a, f) {
			continue
		}
		cpy := *a
		out = append(out, &cpy)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeleteResolvedBefore purges terminal alerts older than cutoff.
func (r *InMemoryRepository) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, a := range r.alerts {
		switch a.State {
		case StateResolved:
			if a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
				delete(r.alerts, id)
				removed++
			}
		case StateSuppressed:
			if a.CreatedAt.Before(cutoff) {
				delete(r.alerts, id)
				removed++
			}
		}
	}
	return removed, nil
}

func matches(a *Alert, f Filter) bool {
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.State != "" && a.State != f.State {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.Unresolved && !a.Unresolved() {
		return false
	}
	if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
