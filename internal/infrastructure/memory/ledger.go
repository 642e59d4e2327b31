package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/transaction"
)

// Ledger is an in-process transaction.Ledger for development and tests.
// Entries are copied on the way in and out.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*transaction.Transaction
}

var _ transaction.Ledger = (*Ledger)(nil)

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*transaction.Transaction)}
}

func (l *Ledger) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.entries[id]
	if !ok {
		return nil, failure.NotFound("transaction", id)
	}
	c := *tx
	return &c, nil
}

func (l *Ledger) List(ctx context.Context) ([]*transaction.Transaction, error) {
	return l.filter(func(*transaction.Transaction) bool { return true }), nil
}

func (l *Ledger) GetByProduct(ctx context.Context, productID string) ([]*transaction.Transaction, error) {
	return l.filter(func(tx *transaction.Transaction) bool {
		return tx.SourceProductID == productID
	}), nil
}

func (l *Ledger) GetByProductAndRange(ctx context.Context, productID string, start, end time.Time) ([]*transaction.Transaction, error) {
	return l.filter(func(tx *transaction.Transaction) bool {
		return tx.SourceProductID == productID && within(tx.Timestamp, start, end)
	}), nil
}

func (l *Ledger) GetByRange(ctx context.Context, start, end time.Time) ([]*transaction.Transaction, error) {
	return l.filter(func(tx *transaction.Transaction) bool {
		return within(tx.Timestamp, start, end)
	}), nil
}

func (l *Ledger) GetByRangeAndProductIDs(ctx context.Context, productIDs []string, start, end time.Time) ([]*transaction.Transaction, error) {
	ids := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		ids[id] = struct{}{}
	}
	return l.filter(func(tx *transaction.Transaction) bool {
		if !within(tx.Timestamp, start, end) {
			return false
		}
		if _, ok := ids[tx.SourceProductID]; ok {
			return true
		}
		_, ok := ids[tx.TargetProductID]
		return ok && tx.TargetProductID != ""
	}), nil
}

func (l *Ledger) Save(ctx context.Context, tx *transaction.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *tx
	l.entries[tx.ID] = &c
	return nil
}

func (l *Ledger) Update(ctx context.Context, tx *transaction.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[tx.ID]; !ok {
		return failure.NotFound("transaction", tx.ID)
	}
	c := *tx
	l.entries[tx.ID] = &c
	return nil
}

func (l *Ledger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[id]; !ok {
		return failure.NotFound("transaction", id)
	}
	delete(l.entries, id)
	return nil
}

// filter returns copies of matching entries ordered by timestamp.
func (l *Ledger) filter(match func(*transaction.Transaction) bool) []*transaction.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*transaction.Transaction, 0)
	for _, tx := range l.entries {
		if match(tx) {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func within(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}
