package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/transaction"
)

// Outbox keeps parked compensations in memory. They do not survive a restart.
type Outbox struct {
	mu      sync.Mutex
	entries map[string]*transaction.Compensation
}

var _ transaction.Outbox = (*Outbox)(nil)

// NewOutbox creates an empty outbox
func NewOutbox() *Outbox {
	return &Outbox{entries: make(map[string]*transaction.Compensation)}
}

func (o *Outbox) Record(ctx context.Context, c *transaction.Compensation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := *c
	o.entries[c.ID] = &cp
	return nil
}

// ClaimPending returns unresolved, unclaimed entries, oldest first, and
// marks them claimed until now+lease.
func (o *Outbox) ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*transaction.Compensation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var open []*transaction.Compensation
	for _, c := range o.entries {
		if c.ResolvedAt != nil {
			continue
		}
		if c.ClaimedUntil != nil && c.ClaimedUntil.After(now) {
			continue
		}
		open = append(open, c)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}

	until := now.Add(lease)
	out := make([]*transaction.Compensation, 0, len(open))
	for _, c := range open {
		c.ClaimedUntil = &until
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (o *Outbox) MarkResolved(ctx context.Context, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.entries[id]
	if !ok || c.ResolvedAt != nil {
		return failure.NotFound("compensation", id)
	}
	c.Attempts++
	c.ResolvedAt = &at
	return nil
}

// MarkFailed records the error and releases the claim.
func (o *Outbox) MarkFailed(ctx context.Context, id string, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.entries[id]
	if !ok {
		return failure.NotFound("compensation", id)
	}
	c.Attempts++
	c.LastError = reason
	c.ClaimedUntil = nil
	return nil
}
