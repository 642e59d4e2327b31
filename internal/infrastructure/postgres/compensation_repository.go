package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"txengine/internal/domain/transaction"
)

// CompensationRepository is the Postgres transaction.Outbox. Inserts raise a
// NOTIFY on CompensationChannel through a trigger.
type CompensationRepository struct {
	db *DB
}

var _ transaction.Outbox = (*CompensationRepository)(nil)

func NewCompensationRepository(db *DB) *CompensationRepository {
	return &CompensationRepository{db: db}
}

func (r *CompensationRepository) Record(ctx context.Context, c *transaction.Compensation) error {
	query := `
		INSERT INTO pending_compensations (id, transaction_id, product_id, delta, reason, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.TransactionID, c.ProductID, c.Delta, c.Reason, c.Attempts, nullable(c.LastError), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record compensation: %w", err)
	}
	return nil
}

// ClaimPending marks up to limit open compensations claimed until now+lease
// and returns them oldest first. Rows locked by a concurrent claim are skipped.
func (r *CompensationRepository) ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*transaction.Compensation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		UPDATE pending_compensations
		SET claimed_until = $2
		WHERE id IN (
			SELECT id FROM pending_compensations
			WHERE resolved_at IS NULL
			  AND (claimed_until IS NULL OR claimed_until <= $3)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, transaction_id, product_id, delta, reason, attempts, last_error, created_at, claimed_until, resolved_at
	`

	rows, err := r.db.QueryContext(ctx, query, limit, now.Add(lease), now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending compensations: %w", err)
	}
	defer rows.Close()

	var pending []*transaction.Compensation
	for rows.Next() {
		var c transaction.Compensation
		var lastError sql.NullString
		var claimedUntil, resolvedAt sql.NullTime

		err := rows.Scan(
			&c.ID, &c.TransactionID, &c.ProductID, &c.Delta, &c.Reason,
			&c.Attempts, &lastError, &c.CreatedAt, &claimedUntil, &resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compensation: %w", err)
		}
		if lastError.Valid {
			c.LastError = lastError.String
		}
		if claimedUntil.Valid {
			c.ClaimedUntil = &claimedUntil.Time
		}
		if resolvedAt.Valid {
			c.ResolvedAt = &resolvedAt.Time
		}
		pending = append(pending, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate compensations: %w", err)
	}

	// RETURNING does not keep the subquery order
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (r *CompensationRepository) MarkResolved(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE pending_compensations
		SET resolved_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $1 AND resolved_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to resolve compensation: %w", err)
	}
	return requireRow(result, "compensation", id)
}

func (r *CompensationRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE pending_compensations
		SET attempts = attempts + 1, last_error = $2, claimed_until = NULL
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to update compensation: %w", err)
	}
	return requireRow(result, "compensation", id)
}
