package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
	"txengine/internal/domain/transaction"
)

// DefaultCurrency is used for commission reports when none is configured
const DefaultCurrency = "PEN"

// Service builds read-only reports from the product registry and the ledger.
type Service struct {
	gateway  product.Gateway
	ledger   transaction.Ledger
	currency string
	now      func() time.Time
}

// NewService creates a reporting service
func NewService(gateway product.Gateway, ledger transaction.Ledger, currency string, now func() time.Time) *Service {
	if currency == "" {
		currency = DefaultCurrency
	}
	if now == nil {
		now = time.Now
	}
	return &Service{gateway: gateway, ledger: ledger, currency: currency, now: now}
}

// AvailableBalance returns the balance of a bank account, or the unused
// credit line of a credit product.
func (s *Service) AvailableBalance(ctx context.Context, productID string) (*AvailableBalance, error) {
	p, err := s.gateway.Get(ctx, productID)
	if err != nil {
		return nil, upstream("get product", err)
	}

	available := p.Balance
	switch d := p.Details.(type) {
	case *product.CreditDetails:
		if !d.CreditLimit.Valid {
			return nil, transaction.ErrCreditLimitNotDefined
		}
		available = d.CreditLimit.Decimal.Sub(p.Balance)
	case *product.SavingsDetails, *product.CurrentDetails, *product.FixedTermDetails:
	default:
		return nil, fmt.Errorf("product %s: unknown details variant %T", p.ID, d)
	}

	return &AvailableBalance{
		ProductID:        p.ID,
		AvailableBalance: available,
		ProductCategory:  p.Category(),
	}, nil
}

// MonthlyBalanceSummary returns the month-to-date average daily balance of
// each customer product, rounded to cents.
func (s *Service) MonthlyBalanceSummary(ctx context.Context, customerID string) (*BalanceSummary, error) {
	now := s.now()
	start, end := transaction.MonthRange(now)

	products, txs, err := s.load(ctx, customerID, start, end)
	if err != nil {
		return nil, err
	}

	summary := &BalanceSummary{
		CustomerID: customerID,
		Month:      now.Format("2006-01"),
		Products:   make([]*ProductAverage, 0, len(products)),
	}
	for _, p := range products {
		avg := transaction.ProductAverageBalance(p, txs, now)
		summary.Products = append(summary.Products, &ProductAverage{
			ProductID:      p.ID,
			ProductType:    p.Type,
			Name:           p.Name,
			AverageBalance: avg.Round(2),
		})
	}
	return summary, nil
}

// CommissionReport sums the fees charged on customer products whose
// transactions fall in period.
func (s *Service) CommissionReport(ctx context.Context, customerID string, period Period) (*CommissionReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	products, txs, err := s.load(ctx, customerID, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*product.BankProduct, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	grouped := make(map[string]*ProductCommission)
	total := decimal.Zero
	for _, tx := range txs {
		p, ok := byID[tx.SourceProductID]
		if !ok || !tx.Fee.IsPositive() {
			continue
		}
		c, ok := grouped[p.ID]
		if !ok {
			c = &ProductCommission{ProductID: p.ID, ProductType: p.Type, Currency: s.currency}
			grouped[p.ID] = c
		}
		c.TotalCommission = c.TotalCommission.Add(tx.Fee)
		c.TransactionCount++
		total = total.Add(tx.Fee)
	}

	report := &CommissionReport{
		CustomerID: customerID,
		Start:      period.Start,
		End:        period.End,
		Total:      total,
		Currency:   s.currency,
		Products:   make([]*ProductCommission, 0, len(grouped)),
	}
	for _, c := range grouped {
		report.Products = append(report.Products, c)
	}
	sort.Slice(report.Products, func(i, j int) bool {
		return report.Products[i].ProductID < report.Products[j].ProductID
	})
	return report, nil
}

// ProductSummary lists customer products with their transaction count in
// period. With activeOnly, products without activity are left out.
func (s *Service) ProductSummary(ctx context.Context, customerID string, period Period, activeOnly bool) ([]*ProductActivity, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	products, err := s.gateway.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, upstream("list customer products", err)
	}
	if len(products) == 0 {
		return []*ProductActivity{}, nil
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	txs, err := s.ledger.GetByRangeAndProductIDs(ctx, ids, period.Start, period.End)
	if err != nil {
		return nil, failure.Persistence("load period transactions", err)
	}

	counts := make(map[string]int, len(products))
	for _, tx := range txs {
		for _, id := range ids {
			if tx.Touches(id) {
				counts[id]++
			}
		}
	}

	out := make([]*ProductActivity, 0, len(products))
	for _, p := range products {
		if activeOnly && counts[p.ID] == 0 {
			continue
		}
		out = append(out, &ProductActivity{
			ProductID:        p.ID,
			ProductType:      p.Type,
			ProductCategory:  p.Category(),
			Status:           p.Status,
			Name:             p.Name,
			Balance:          p.Balance,
			TransactionCount: counts[p.ID],
		})
	}
	return out, nil
}

// load fetches the customer's products and the ledger entries in [start, end]
// concurrently.
func (s *Service) load(ctx context.Context, customerID string, start, end time.Time) ([]*product.BankProduct, []*transaction.Transaction, error) {
	var products []*product.BankProduct
	var txs []*transaction.Transaction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ps, err := s.gateway.ListByCustomer(gctx, customerID)
		if err != nil {
			return upstream("list customer products", err)
		}
		products = ps
		return nil
	})
	g.Go(func() error {
		ts, err := s.ledger.GetByRange(gctx, start, end)
		if err != nil {
			return failure.Persistence("load transactions", err)
		}
		txs = ts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return products, txs, nil
}

func upstream(op string, err error) error {
	if failure.Kind(err) != nil {
		return err
	}
	return failure.Upstream(op, err)
}
