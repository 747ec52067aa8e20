package alerting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository, the
// durable injection point for production deployments.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL alert repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const alertColumns = `
	id, patient_id, type, severity, category, message, source,
	signal, value, reference_range, correlation_id, state,
	created_at, updated_at,
	acknowledged_by, acknowledged_at,
	resolved_by, resolved_at, resolution_notes,
	suppression_reason, escalated_at
`

// Create stores a new alert.
func (r *PostgresRepository) Create(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.PatientID, a.Type, a.Severity, a.Category, a.Message, a.Source,
		a.Signal, a.Value, a.ReferenceRange, nullable(a.CorrelationID), a.State,
		a.CreatedAt, a.UpdatedAt,
		nullable(a.AcknowledgedBy), a.AcknowledgedAt,
		nullable(a.ResolvedBy), a.ResolvedAt, nullable(a.ResolutionNotes),
		nullable(a.SuppressionReason), a.EscalatedAt,
	)
	return err
}

// Get retrieves an alert by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	return r.scanAlert(r.pool.QueryRow(ctx, query, id))
}

// Update replaces a stored alert.
func (r *PostgresRepository) Update(ctx context.Context, a *Alert) error {
	query := `
		UPDATE alerts SET
			severity = $2, message = $3, correlation_id = $4, state = $5,
			updated_at = $6,
			acknowledged_by = $7, acknowledged_at = $8,
			resolved_by = $9, resolved_at = $10, resolution_notes = $11,
			suppression_reason = $12, escalated_at = $13
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.Severity, a.Message, nullable(a.CorrelationID), a.State,
		a.UpdatedAt,
		nullable(a.AcknowledgedBy), a.AcknowledgedAt,
		nullable(a.ResolvedBy), a.ResolvedAt, nullable(a.ResolutionNotes),
		nullable(a.SuppressionReason), a.EscalatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// List retrieves alerts matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`

	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, clause+" $"+strconv.Itoa(len(args)))
	}

	if f.PatientID != "" {
		add("patient_id =", f.PatientID)
	}
	if f.State != "" {
		add("state =", f.State)
	}
	if f.Severity != "" {
		add("severity =", f.Severity)
	}
	if f.Category != "" {
		add("category =", f.Category)
	}
	if f.Unresolved {
		clauses = append(clauses, "state IN ('active', 'acknowledged')")
	}
	if !f.Since.IsZero() {
		add("created_at >=", f.Since)
	}

	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// DeleteResolvedBefore purges terminal alerts older than cutoff.
func (r *PostgresRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM alerts
		WHERE (state = 'resolved' AND resolved_at < $1)
		   OR (state = 'suppressed' AND created_at < $1)
	`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresRepository) scanAlert(row rowScanner) (*Alert, error) {
	var (
		a                 Alert
		correlationID     *string
		acknowledgedBy    *string
		resolvedBy        *string
		resolutionNotes   *string
		suppressionReason *string
	)

	err := row.Scan(
		&a.ID, &a.PatientID, &a.Type, &a.Severity, &a.Category, &a.Message, &a.Source,
		&a.Signal, &a.Value, &a.ReferenceRange, &correlationID, &a.State,
		&a.CreatedAt, &a.UpdatedAt,
		&acknowledgedBy, &a.AcknowledgedAt,
		&resolvedBy, &a.ResolvedAt, &resolutionNotes,
		&suppressionReason, &a.EscalatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	a.CorrelationID = deref(correlationID)
	a.AcknowledgedBy = deref(acknowledgedBy)
	a.ResolvedBy = deref(resolvedBy)
	a.ResolutionNotes = deref(resolutionNotes)
	a.SuppressionReason = deref(suppressionReason)
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
