package monthly

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
	"txengine/internal/domain/transaction"
)

const (
	// DefaultWorkerCount is the default number of products processed concurrently
	DefaultWorkerCount = 8
)

var (
	batchMeter       = otel.Meter("txengine/monthly")
	productsTotal, _ = batchMeter.Int64Counter("monthly.product.total",
		metric.WithDescription("Products processed by the monthly batch by outcome"))
)

// ProductResult is what the batch did to one product.
type ProductResult struct {
	ProductID      string           `json:"productId"`
	FeeCharged     decimal.Decimal  `json:"feeCharged"`
	FeeSkipped     bool             `json:"feeSkipped,omitempty"`
	AverageBalance *decimal.Decimal `json:"averageBalance,omitempty"`
	Blocked        bool             `json:"blocked,omitempty"`
	AlreadyBlocked bool             `json:"alreadyBlocked,omitempty"`
	Errors         []string         `json:"errors,omitempty"`
}

// Report summarizes a batch run.
type Report struct {
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Processed  int              `json:"processed"`
	Charged    int              `json:"charged"`
	Blocked    int              `json:"blocked"`
	Failed     int              `json:"failed"`
	Results    []*ProductResult `json:"results"`
}

// Service runs the end-of-month tasks: maintenance fees, then average balance
// enforcement on savings accounts.
//
// Running it twice in the same month charges the maintenance fee twice; there
// is no run marker.
type Service struct {
	gateway     product.Gateway
	ledger      transaction.Ledger
	saga        *transaction.Saga
	publisher   transaction.Publisher
	alerter     transaction.Alerter
	now         func() time.Time
	workerCount int
}

// NewService creates a batch service with the default worker count
func NewService(gateway product.Gateway, ledger transaction.Ledger, saga *transaction.Saga, publisher transaction.Publisher, alerter transaction.Alerter, now func() time.Time) *Service {
	return NewServiceWithWorkers(gateway, ledger, saga, publisher, alerter, now, DefaultWorkerCount)
}

// NewServiceWithWorkers creates a batch service with a custom worker count
func NewServiceWithWorkers(gateway product.Gateway, ledger transaction.Ledger, saga *transaction.Saga, publisher transaction.Publisher, alerter transaction.Alerter, now func() time.Time, workerCount int) *Service {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if now == nil {
		now = time.Now
	}
	if alerter == nil {
		alerter = transaction.LogAlerter{}
	}
	return &Service{
		gateway:     gateway,
		ledger:      ledger,
		saga:        saga,
		publisher:   publisher,
		alerter:     alerter,
		now:         now,
		workerCount: workerCount,
	}
}

// Run processes every product in the registry. A failure on one product is
// recorded in its result and does not stop the others.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: s.now()}

	products, err := s.gateway.ListAll(ctx)
	if err != nil {
		if failure.Kind(err) == nil {
			err = failure.Upstream("list products", err)
		}
		return nil, err
	}

	log.Printf("Monthly batch: processing %d products with %d workers", len(products), s.workerCount)

	results := make([]*ProductResult, len(products))
	var wg sync.WaitGroup

	// Use semaphore to limit concurrent product processing
	sem := make(chan struct{}, s.workerCount)

	for i, p := range products {
		wg.Add(1)
		go func(i int, p *product.BankProduct) {
			defer wg.Done()

			var result *ProductResult
			select {
			case sem <- struct{}{}:
				result = s.process(ctx, p)
				<-sem
			case <-ctx.Done():
				result = &ProductResult{ProductID: p.ID, Errors: []string{ctx.Err().Error()}}
			}

			results[i] = result
		}(i, p)
	}

	wg.Wait()

	for _, r := range results {
		report.Results = append(report.Results, r)
		report.Processed++
		if r.FeeCharged.IsPositive() {
			report.Charged++
		}
		if r.Blocked {
			report.Blocked++
		}
		outcome := "ok"
		if len(r.Errors) > 0 {
			report.Failed++
			outcome = "failed"
		}
		productsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	sort.SliceStable(report.Results, func(i, j int) bool {
		return report.Results[i].ProductID < report.Results[j].ProductID
	})
	report.FinishedAt = s.now()

	log.Printf("Monthly batch complete: processed=%d, charged=%d, blocked=%d, failed=%d",
		report.Processed, report.Charged, report.Blocked, report.Failed)
	return report, nil
}

func (s *Service) process(ctx context.Context, p *product.BankProduct) *ProductResult {
	result := &ProductResult{ProductID: p.ID}

	// A failed fee leaves the registry as it was, so the average check still
	// runs on the listed snapshot.
	snapshot, err := s.chargeMaintenance(ctx, p.Clone(), result)
	if err != nil {
		log.Printf("Monthly batch: maintenance fee failed for product %s: %v", p.ID, err)
		result.Errors = append(result.Errors, err.Error())
		snapshot = p.Clone()
	}

	if err := s.enforceAverageBalance(ctx, snapshot, result); err != nil {
		log.Printf("Monthly batch: average balance check failed for product %s: %v", p.ID, err)
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

// chargeMaintenance debits the maintenance fee and returns the snapshot the
// next step must use.
func (s *Service) chargeMaintenance(ctx context.Context, p *product.BankProduct, result *ProductResult) (*product.BankProduct, error) {
	fee, err := p.MaintenanceFee()
	if err != nil {
		return nil, err
	}
	if !fee.IsPositive() {
		return p, nil
	}
	if p.Balance.LessThan(fee) {
		result.FeeSkipped = true
		return p, nil
	}

	tx := &transaction.Transaction{
		ID:              uuid.NewString(),
		SourceProductID: p.ID,
		Type:            transaction.TypeMaintenance,
		Amount:          fee,
		Fee:             decimal.Zero,
		Timestamp:       s.now().Truncate(time.Microsecond),
	}
	after := p.Clone()
	after.Balance = p.Balance.Sub(fee)

	if _, err := s.saga.Commit(ctx, tx, []transaction.Change{{Before: p, After: after, Delta: fee.Neg()}}); err != nil {
		return nil, fmt.Errorf("failed to charge maintenance fee: %w", err)
	}

	result.FeeCharged = fee
	s.publish(ctx, transaction.EventMaintenanceCharged, tx)
	return after, nil
}

func (s *Service) enforceAverageBalance(ctx context.Context, p *product.BankProduct, result *ProductResult) error {
	d, ok := p.Details.(*product.SavingsDetails)
	if !ok || !d.RequiredMonthlyAverageBalance.IsPositive() {
		return nil
	}

	now := s.now()
	start, end := transaction.MonthRange(now)
	txs, err := s.ledger.GetByRangeAndProductIDs(ctx, []string{p.ID}, start, end)
	if err != nil {
		return failure.Persistence("load month transactions", err)
	}

	avg := transaction.AverageBalance(p.Balance, p.ID, txs, now)
	result.AverageBalance = &avg
	if !avg.LessThan(d.RequiredMonthlyAverageBalance) {
		return nil
	}
	if p.Status == product.StatusBlockedAvgBalance {
		result.AlreadyBlocked = true
		return nil
	}

	blocked := p.Clone()
	blocked.Status = product.StatusBlockedAvgBalance
	if _, err := s.gateway.Update(ctx, blocked); err != nil {
		if failure.Kind(err) == nil {
			err = failure.Upstream("block product "+p.ID, err)
		}
		return err
	}
	result.Blocked = true

	log.Printf("Product %s blocked: average balance %s below required %s",
		p.ID, avg.StringFixed(2), d.RequiredMonthlyAverageBalance)
	s.publish(ctx, transaction.EventProductBlocked, map[string]string{
		"productId":  p.ID,
		"customerId": p.CustomerID,
		"average":    avg.StringFixed(2),
		"required":   d.RequiredMonthlyAverageBalance.String(),
	})
	if err := s.alerter.Alert(ctx, "Product blocked",
		fmt.Sprintf("Product %s was blocked for a monthly average balance of %s", p.ID, avg.StringFixed(2)),
		map[string]string{"productId": p.ID, "customerId": p.CustomerID}); err != nil {
		log.Printf("Failed to send block alert for product %s: %v", p.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
