package alerting

import (
	"context"
	"errors"
	"time"
)

// Repository errors.
var (
	ErrAlertNotFound = errors.New("alert not found")
)

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	PatientID string
	State     State
	Severity  Severity
	Category  Category
	// Unresolved restricts results to active and acknowledged alerts.
	Unresolved bool
	// Since excludes alerts created before it when non-zero.
	Since time.Time
	Limit int
}

// Repository defines the persistence contract for alerts. The engine runs on
// the in-memory implementation by default; production deployments inject a
// durable one behind the same contract.
type Repository interface {
	// Create stores a new alert.
	Create(ctx context.Context, a *Alert) error

	// Get retrieves an alert by ID. Returns ErrAlertNotFound if absent.
	Get(ctx context.Context, id string) (*Alert, error)

	// Update replaces a stored alert. Returns ErrAlertNotFound if absent.
	Update(ctx context.Context, a *Alert) error

	// List retrieves alerts matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Alert, error)

	// DeleteResolvedBefore purges resolved and suppressed alerts whose
	// resolution (or creation, for suppressed) predates cutoff. Returns the
	// number of alerts removed.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
