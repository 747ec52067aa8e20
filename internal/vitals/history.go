package vitals

import (
	"context"
	"errors"
	"sync"
)

// Repository errors.
var (
	ErrNoHistory = errors.New("no reading history for patient")
)

// HistoryRepository stores the bounded per-patient reading history.
type HistoryRepository interface {
	// Append stores a reading, evicting the oldest once the per-patient
	// bound is exceeded.
	Append(ctx context.Context, r *Reading) error

	// Recent retrieves up to n most recent readings for a patient, oldest
	// first. Returns ErrNoHistory when the patient has none.
	Recent(ctx context.Context, patientID string, n int) ([]Reading, error)

	// Patients lists every patient with stored history.
	Patients(ctx context.Context) ([]string, error)
}

// InMemoryHistory is an in-memory implementation of HistoryRepository.
type InMemoryHistory struct {
	mu       sync.RWMutex
	capacity int
	readings map[string][]Reading
}

// NewInMemoryHistory creates an in-memory history bounded to capacity
// readings per patient.
func NewInMemoryHistory(capacity int) *InMemoryHistory {
	if capacity <= 0 {
		capacity = 50
	}
	return &InMemoryHistory{
		capacity: capacity,
		readings: make(map[string][]Reading),
	}
}

// Append stores a reading, evicting the oldest past the bound.
func (h *InMemoryHistory) Append(_ context.Context, r *Reading) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := append(h.readings[r.PatientID], *r)
	if len(buf) > h.capacity {
		buf = buf[len(buf)-h.capacity:]
	}
	h.readings[r.PatientID] = buf
	return nil
}

// Recent retrieves up to n most recent readings, oldest first.
func (h *InMemoryHistory) Recent(_ context.Context, patientID string, n int) ([]Reading, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf, ok := h.readings[patientID]
	if !ok || len(buf) == 0 {
		return nil, ErrNoHistory
	}
	if n <= 0 || n > len(buf) {
		n = len(buf)
	}

	out := make([]Reading, n)
	copy(out, buf[len(buf)-n:])
	return out, nil
}

// Patients lists every patient with stored history.
func (h *InMemoryHistory) Patients(_ context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.readings))
	for id := range h.readings {
		out = append(out, id)
	}
	return out, nil
}

// Ensure InMemoryHistory implements HistoryRepository interface.
var _ HistoryRepository = (*InMemoryHistory)(nil)
