package transaction

import (
	"context"
	"time"
)

// Ledger defines the interface for transaction data access.
// Range bounds are inclusive and results are unordered. Get, Update and Delete
// return an error wrapping failure.ErrNotFound for unknown ids.
type Ledger interface {
	Get(ctx context.Context, id string) (*Transaction, error)
	List(ctx context.Context) ([]*Transaction, error)

	// GetByProduct returns transactions whose source is productID
	GetByProduct(ctx context.Context, productID string) ([]*Transaction, error)
	GetByProductAndRange(ctx context.Context, productID string, start, end time.Time) ([]*Transaction, error)
	GetByRange(ctx context.Context, start, end time.Time) ([]*Transaction, error)

	// GetByRangeAndProductIDs returns transactions with either endpoint in productIDs
	GetByRangeAndProductIDs(ctx context.Context, productIDs []string, start, end time.Time) ([]*Transaction, error)

	Save(ctx context.Context, tx *Transaction) error
	Update(ctx context.Context, tx *Transaction) error
	Delete(ctx context.Context, id string) error
}

// Outbox keeps compensations that could not be applied to the registry.
//
// ClaimPending hands each unresolved entry to a single caller: a claimed entry
// is not returned again until its lease runs out or it is marked failed.
// MarkResolved fails with failure.ErrNotFound for entries already resolved.
type Outbox interface {
	Record(ctx context.Context, c *Compensation) error
	ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*Compensation, error)
	MarkResolved(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}
