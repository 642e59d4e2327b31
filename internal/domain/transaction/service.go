package transaction

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

var (
	txMeter             = otel.Meter("txengine/transaction")
	transactionTotal, _ = txMeter.Int64Counter("transaction.create.total",
		metric.WithDescription("Transaction create attempts by type and outcome"))
)

// Service orchestrates transaction creation and administrative changes.
//
// Product balances are read, recomputed and written back without a version
// check, so two concurrent transactions on one product can overwrite each
// other's balance (last write wins). The registry offers no compare-and-set.
type Service struct {
	gateway   product.Gateway
	ledger    Ledger
	pipeline  *Pipeline
	saga      *Saga
	publisher Publisher
	now       func() time.Time
}

// NewService creates the transaction orchestrator. publisher may be nil.
func NewService(gateway product.Gateway, ledger Ledger, saga *Saga, publisher Publisher, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		gateway:   gateway,
		ledger:    ledger,
		pipeline:  NewPipeline(ledger, now),
		saga:      saga,
		publisher: publisher,
		now:       now,
	}
}

// Create validates, applies and records a new transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Transaction, error) {
	tx, err := s.create(ctx, params)
	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
	}
	transactionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(params.Type)),
		attribute.String("outcome", outcome),
	))
	return tx, err
}

func (s *Service) create(ctx context.Context, params CreateParams) (*Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	tx := &Transaction{
		ID:              uuid.NewString(),
		SourceProductID: params.SourceProductID,
		Type:            params.Type,
		Amount:          params.Amount,
		Timestamp:       s.now().Truncate(time.Microsecond),
	}
	if params.Type == TypeTransfer {
		tx.TargetProductID = params.TargetProductID
	}

	source, target, err := s.resolve(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := s.pipeline.Validate(ctx, tx, source, target); err != nil {
		return nil, err
	}

	changes, err := Apply(tx, source, target)
	if err != nil {
		return nil, err
	}

	if _, err := s.saga.Commit(ctx, tx, changes); err != nil {
		return nil, err
	}

	log.Printf("Created %s transaction %s on product %s: amount=%s fee=%s",
		tx.Type, tx.ID, tx.SourceProductID, tx.Amount, tx.Fee)
	publish(ctx, s.publisher, EventTransactionCreated, tx)
	return tx, nil
}

// resolve fetches the source product and, for transfers, the target in parallel.
func (s *Service) resolve(ctx context.Context, tx *Transaction) (*product.BankProduct, *product.BankProduct, error) {
	var source, target *product.BankProduct

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.gateway.Get(gctx, tx.SourceProductID)
		if err != nil {
			return gatewayErr("get source product", err)
		}
		source = p
		return nil
	})
	if tx.TargetProductID != "" {
		g.Go(func() error {
			p, err := s.gateway.Get(gctx, tx.TargetProductID)
			if err != nil {
				return gatewayErr("get target product", err)
			}
			target = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

// Get returns a transaction by id.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	tx, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, ledgerErr("get transaction", err)
	}
	return tx, nil
}

// List returns every transaction in the ledger.
func (s *Service) List(ctx context.Context) ([]*Transaction, error) {
	txs, err := s.ledger.List(ctx)
	if err != nil {
		return nil, ledgerErr("list transactions", err)
	}
	return txs, nil
}

// ListByProduct returns the transactions whose source is productID.
func (s *Service) ListByProduct(ctx context.Context, productID string) ([]*Transaction, error) {
	txs, err := s.ledger.GetByProduct(ctx, productID)
	if err != nil {
		return nil, ledgerErr("list product transactions", err)
	}
	return txs, nil
}

// Update overwrites type, amount and source product of a recorded transaction.
// Business rules are not re-run and product balances are not touched.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, ledgerErr("get transaction", err)
	}

	tx.Type = params.Type
	tx.Amount = params.Amount
	tx.SourceProductID = params.SourceProductID

	if err := s.ledger.Update(ctx, tx); err != nil {
		return nil, ledgerErr("update transaction", err)
	}

	log.Printf("Transaction %s updated administratively: type=%s amount=%s source=%s",
		tx.ID, tx.Type, tx.Amount, tx.SourceProductID)
	publish(ctx, s.publisher, EventTransactionUpdated, tx)
	return tx, nil
}

// Delete removes a transaction record. Product balances are not touched.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.ledger.Delete(ctx, id); err != nil {
		return ledgerErr("delete transaction", err)
	}
	log.Printf("Transaction %s deleted", id)
	publish(ctx, s.publisher, EventTransactionDeleted, map[string]string{"id": id})
	return nil
}

func gatewayErr(op string, err error) error {
	if failure.Kind(err) != nil {
		return err
	}
	return failure.Upstream(op, err)
}

func ledgerErr(op string, err error) error {
	if failure.Kind(err) != nil {
		return err
	}
	return failure.Persistence(op, err)
}

func outcomeOf(err error) string {
	switch failure.Kind(err) {
	case failure.ErrValidation:
		return "validation"
	case failure.ErrBusinessRule:
		return "rejected"
	case failure.ErrNotFound:
		return "not_found"
	case failure.ErrUpstream:
		return "upstream"
	case failure.ErrPersistence:
		return "persistence"
	default:
		return "error"
	}
}
