package transaction

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

// MockGateway implements product.Gateway for testing
type MockGateway struct {
	GetFunc            func(ctx context.Context, id string) (*product.BankProduct, error)
	ListByCustomerFunc func(ctx context.Context, customerID string) ([]*product.BankProduct, error)
	ListAllFunc        func(ctx context.Context) ([]*product.BankProduct, error)
	UpdateFunc         func(ctx context.Context, p *product.BankProduct) (*product.BankProduct, error)
	GetCardFunc        func(ctx context.Context, id string) (*product.Card, error)
}

func (m *MockGateway) Get(ctx context.Context, id string) (*product.BankProduct, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, failure.NotFound("product", id)
}

func (m *MockGateway) ListByCustomer(ctx context.Context, customerID string) ([]*product.BankProduct, error) {
	if m.ListByCustomerFunc != nil {
		return m.ListByCustomerFunc(ctx, customerID)
	}
	return nil, nil
}

func (m *MockGateway) ListAll(ctx context.Context) ([]*product.BankProduct, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	return nil, nil
}

func (m *MockGateway) Update(ctx context.Context, p *product.BankProduct) (*product.BankProduct, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	return p, nil
}

func (m *MockGateway) GetCard(ctx context.Context, id string) (*product.Card, error) {
	if m.GetCardFunc != nil {
		return m.GetCardFunc(ctx, id)
	}
	return nil, failure.NotFound("card", id)
}

// productStore backs a MockGateway with a map so writes are observable.
type productStore struct {
	mu       sync.Mutex
	products map[string]*product.BankProduct
	updates  []string
}

func newProductStore(products ...*product.BankProduct) *productStore {
	s := &productStore{products: make(map[string]*product.BankProduct)}
	for _, p := range products {
		s.products[p.ID] = p.Clone()
	}
	return s
}

func (s *productStore) gateway() *MockGateway {
	return &MockGateway{
		GetFunc: func(ctx context.Context, id string) (*product.BankProduct, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			p, ok := s.products[id]
			if !ok {
				return nil, failure.NotFound("product", id)
			}
			return p.Clone(), nil
		},
		UpdateFunc: func(ctx context.Context, p *product.BankProduct) (*product.BankProduct, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.products[p.ID] = p.Clone()
			s.updates = append(s.updates, p.ID)
			return p.Clone(), nil
		},
	}
}

func (s *productStore) balance(id string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Balance
}

func (s *productStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

// MockLedger implements Ledger for testing. Unset funcs fall back to an
// in-memory slice.
type MockLedger struct {
	mu      sync.Mutex
	entries []*Transaction

	SaveFunc                 func(ctx context.Context, tx *Transaction) error
	GetByProductAndRangeFunc func(ctx context.Context, productID string, start, end time.Time) ([]*Transaction, error)
}

func (m *MockLedger) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.entries {
		if tx.ID == id {
			c := *tx
			return &c, nil
		}
	}
	return nil, failure.NotFound("transaction", id)
}

func (m *MockLedger) List(ctx context.Context) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Transaction(nil), m.entries...), nil
}

func (m *MockLedger) GetByProduct(ctx context.Context, productID string) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Transaction
	for _, tx := range m.entries {
		if tx.SourceProductID == productID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MockLedger) GetByProductAndRange(ctx context.Context, productID string, start, end time.Time) ([]*Transaction, error) {
	if m.GetByProductAndRangeFunc != nil {
		return m.GetByProductAndRangeFunc(ctx, productID, start, end)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Transaction
	for _, tx := range m.entries {
		if tx.SourceProductID == productID && inRange(tx.Timestamp, start, end) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MockLedger) GetByRange(ctx context.Context, start, end time.Time) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Transaction
	for _, tx := range m.entries {
		if inRange(tx.Timestamp, start, end) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MockLedger) GetByRangeAndProductIDs(ctx context.Context, productIDs []string, start, end time.Time) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Transaction
	for _, tx := range m.entries {
		if !inRange(tx.Timestamp, start, end) {
			continue
		}
		for _, id := range productIDs {
			if tx.Touches(id) {
				out = append(out, tx)
				break
			}
		}
	}
	return out, nil
}

func (m *MockLedger) Save(ctx context.Context, tx *Transaction) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *tx
	m.entries = append(m.entries, &c)
	return nil
}

func (m *MockLedger) Update(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == tx.ID {
			c := *tx
			m.entries[i] = &c
			return nil
		}
	}
	return failure.NotFound("transaction", tx.ID)
}

func (m *MockLedger) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return failure.NotFound("transaction", id)
}

func (m *MockLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}

// MockOutbox implements Outbox for testing. Claims follow the Outbox
// contract so overlapping retry passes can be exercised.
type MockOutbox struct {
	mu       sync.Mutex
	recorded []*Compensation
	resolved []string
	failed   []string
	claimed  map[string]time.Time

	RecordFunc       func(ctx context.Context, c *Compensation) error
	ClaimPendingFunc func(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*Compensation, error)
}

func (m *MockOutbox) Record(ctx context.Context, c *Compensation) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, c)
	return nil
}

func (m *MockOutbox) ClaimPending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*Compensation, error) {
	if m.ClaimPendingFunc != nil {
		return m.ClaimPendingFunc(ctx, limit, now, lease)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = make(map[string]time.Time)
	}
	var out []*Compensation
	for _, c := range m.recorded {
		if m.isResolved(c.ID) {
			continue
		}
		if until, ok := m.claimed[c.ID]; ok && until.After(now) {
			continue
		}
		m.claimed[c.ID] = now.Add(lease)
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOutbox) isResolved(id string) bool {
	for _, r := range m.resolved {
		if r == id {
			return true
		}
	}
	return false
}

func (m *MockOutbox) MarkResolved(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isResolved(id) {
		return failure.NotFound("compensation", id)
	}
	m.resolved = append(m.resolved, id)
	return nil
}

func (m *MockOutbox) MarkFailed(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, id)
	delete(m.claimed, id)
	return nil
}

// MockAlerter records alerts
type MockAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (m *MockAlerter) Alert(ctx context.Context, title, body string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
	return nil
}

func (m *MockAlerter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.titles)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int {
	return &v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func savings(id, balance string, d product.SavingsDetails) *product.BankProduct {
	return &product.BankProduct{ID: id, CustomerID: "c-1", Type: product.TypeSavings, Status: product.StatusActive, Balance: dec(balance), Details: &d}
}

func current(id, balance string, d product.CurrentDetails) *product.BankProduct {
	return &product.BankProduct{ID: id, CustomerID: "c-1", Type: product.TypeCurrent, Status: product.StatusActive, Balance: dec(balance), Details: &d}
}

func fixedTerm(id, balance string, d product.FixedTermDetails) *product.BankProduct {
	return &product.BankProduct{ID: id, CustomerID: "c-1", Type: product.TypeFixedTerm, Status: product.StatusActive, Balance: dec(balance), Details: &d}
}

func credit(id, debt string, limit *decimal.Decimal) *product.BankProduct {
	d := &product.CreditDetails{}
	if limit != nil {
		d.CreditLimit = decimal.NewNullDecimal(*limit)
	}
	return &product.BankProduct{ID: id, CustomerID: "c-1", Type: product.TypeCredit, Status: product.StatusActive, Balance: dec(debt), Details: d}
}

// seed returns n ledger entries on productID dated at ts.
func seed(productID string, n int, ts time.Time) []*Transaction {
	txs := make([]*Transaction, n)
	for i := range txs {
		txs[i] = &Transaction{
			ID:              "seed-" + productID + "-" + decimal.NewFromInt(int64(i)).String(),
			SourceProductID: productID,
			Type:            TypeDeposit,
			Amount:          decimal.NewFromInt(1),
			Timestamp:       ts,
		}
	}
	return txs
}
