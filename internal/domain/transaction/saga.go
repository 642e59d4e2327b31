package transaction

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

const (
	compensationTimeout = 10 * time.Second

	// claimLease bounds how long a crashed retry pass keeps entries away from
	// other passes.
	claimLease = 15 * time.Minute
)

var (
	sagaMeter            = otel.Meter("txengine/saga")
	compensationTotal, _ = sagaMeter.Int64Counter("saga.compensation.total",
		metric.WithDescription("Compensating registry writes by outcome"))
)

// Compensation is a registry balance correction that still has to be applied.
// Delta is added to the product's balance.
type Compensation struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	ProductID     string          `json:"productId"`
	Delta         decimal.Decimal `json:"delta"`
	Reason        string          `json:"reason"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ClaimedUntil  *time.Time      `json:"claimedUntil,omitempty"`
	ResolvedAt    *time.Time      `json:"resolvedAt,omitempty"`
}

// RetryResult summarizes one pass over the outbox.
type RetryResult struct {
	Attempted int
	Resolved  int
	Failed    int
}

// Saga writes product changes to the registry and then the transaction to the
// ledger. A failed step reverts the registry writes already done; a revert
// that fails is parked in the outbox and raised as an alert.
type Saga struct {
	gateway   product.Gateway
	ledger    Ledger
	outbox    Outbox
	alerter   Alerter
	publisher Publisher
	now       func() time.Time

	// retryMu serializes retry passes within the process; the outbox claim
	// covers passes in other processes.
	retryMu sync.Mutex
}

// NewSaga creates a saga. outbox, alerter and publisher may be nil.
func NewSaga(gateway product.Gateway, ledger Ledger, outbox Outbox, alerter Alerter, publisher Publisher, now func() time.Time) *Saga {
	if alerter == nil {
		alerter = LogAlerter{}
	}
	if now == nil {
		now = time.Now
	}
	return &Saga{
		gateway:   gateway,
		ledger:    ledger,
		outbox:    outbox,
		alerter:   alerter,
		publisher: publisher,
		now:       now,
	}
}

// Commit pushes every change in order, then saves tx. The returned products
// are the registry's view after the update.
func (s *Saga) Commit(ctx context.Context, tx *Transaction, changes []Change) ([]*product.BankProduct, error) {
	updated := make([]*product.BankProduct, 0, len(changes))
	pushed := make([]Change, 0, len(changes))

	for _, c := range changes {
		p, err := s.gateway.Update(ctx, c.After)
		if err != nil {
			s.compensate(ctx, tx, pushed, err)
			if failure.Kind(err) == nil {
				err = failure.Upstream("update product "+c.After.ID, err)
			}
			return nil, err
		}
		if p == nil {
			p = c.After
		}
		updated = append(updated, p)
		pushed = append(pushed, c)
	}

	if err := s.ledger.Save(ctx, tx); err != nil {
		s.compensate(ctx, tx, pushed, err)
		return nil, failure.Persistence("save transaction "+tx.ID, err)
	}

	return updated, nil
}

// compensate reverts pushed changes, newest first, on a context that outlives
// the caller's cancellation.
func (s *Saga) compensate(ctx context.Context, tx *Transaction, pushed []Change, cause error) {
	if len(pushed) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for i := len(pushed) - 1; i >= 0; i-- {
		c := pushed[i]
		reversal := c.Delta.Neg()
		if err := s.revert(ctx, c.After.ID, reversal); err != nil {
			compensationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
			log.Printf("Compensation failed for product %s (transaction %s): %v", c.After.ID, tx.ID, err)
			s.park(ctx, &Compensation{
				ID:            uuid.NewString(),
				TransactionID: tx.ID,
				ProductID:     c.After.ID,
				Delta:         reversal,
				Reason:        cause.Error(),
				Attempts:      1,
				LastError:     err.Error(),
				CreatedAt:     s.now(),
			})
			continue
		}
		compensationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "applied")))
		log.Printf("Compensated product %s by %s after failure of transaction %s", c.After.ID, reversal, tx.ID)
	}
}

// revert re-reads the product and adds delta to its current balance.
func (s *Saga) revert(ctx context.Context, productID string, delta decimal.Decimal) error {
	current, err := s.gateway.Get(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to read product: %w", err)
	}
	next := current.Clone()
	next.Balance = current.Balance.Add(delta)
	if _, err := s.gateway.Update(ctx, next); err != nil {
		return fmt.Errorf("failed to write product: %w", err)
	}
	return nil
}

func (s *Saga) park(ctx context.Context, c *Compensation) {
	recorded := "recorded in outbox"
	if s.outbox == nil {
		recorded = "no outbox configured"
	} else if err := s.outbox.Record(ctx, c); err != nil {
		log.Printf("Failed to record compensation %s for product %s: %v", c.ID, c.ProductID, err)
		recorded = "outbox write failed: " + err.Error()
	}

	body := fmt.Sprintf("Product %s needs a balance correction of %s for transaction %s (%s)",
		c.ProductID, c.Delta, c.TransactionID, recorded)
	if err := s.alerter.Alert(ctx, "Compensation failed", body, map[string]string{
		"compensationId": c.ID,
		"productId":      c.ProductID,
		"transactionId":  c.TransactionID,
		"delta":          c.Delta.String(),
	}); err != nil {
		log.Printf("Failed to send compensation alert: %v", err)
	}
	publish(ctx, s.publisher, EventCompensationPending, c)
}

// RetryPending claims up to limit parked compensations and applies them.
// Concurrent passes never apply the same entry twice.
func (s *Saga) RetryPending(ctx context.Context, limit int) (*RetryResult, error) {
	result := &RetryResult{}
	if s.outbox == nil {
		return result, nil
	}

	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	pending, err := s.outbox.ClaimPending(ctx, limit, s.now(), claimLease)
	if err != nil {
		return result, failure.Persistence("claim pending compensations", err)
	}

	for _, c := range pending {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.Attempted++
		if err := s.revert(ctx, c.ProductID, c.Delta); err != nil {
			result.Failed++
			log.Printf("Retry of compensation %s for product %s failed: %v", c.ID, c.ProductID, err)
			if markErr := s.outbox.MarkFailed(ctx, c.ID, err.Error()); markErr != nil {
				log.Printf("Failed to update compensation %s: %v", c.ID, markErr)
			}
			continue
		}

		result.Resolved++
		// TODO: send the compensation id with the registry write once PUT /products accepts an idempotency key
		if err := s.outbox.MarkResolved(ctx, c.ID, s.now()); err != nil {
			log.Printf("Compensation %s applied but could not be marked resolved: %v", c.ID, err)
		}
		publish(ctx, s.publisher, EventCompensationResolved, c)
	}

	log.Printf("Compensation retry: attempted=%d, resolved=%d, failed=%d",
		result.Attempted, result.Resolved, result.Failed)
	return result, nil
}
