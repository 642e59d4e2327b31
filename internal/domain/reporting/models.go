package reporting

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

var validate = validator.New()

// AvailableBalance is what a product can still spend or borrow.
type AvailableBalance struct {
	ProductID        string           `json:"productId"`
	AvailableBalance decimal.Decimal  `json:"availableBalance"`
	ProductCategory  product.Category `json:"productCategory"`
}

// ProductAverage is a product's average daily balance for the current month.
type ProductAverage struct {
	ProductID      string          `json:"productId"`
	ProductType    product.Type    `json:"productType"`
	Name           string          `json:"name,omitempty"`
	AverageBalance decimal.Decimal `json:"averageBalance"`
}

// BalanceSummary lists the month-to-date average of every customer product.
type BalanceSummary struct {
	CustomerID string            `json:"customerId"`
	Month      string            `json:"month"`
	Products   []*ProductAverage `json:"products"`
}

// ProductCommission is the fee total charged on one product in a period.
type ProductCommission struct {
	ProductID        string          `json:"productId"`
	ProductType      product.Type    `json:"productType"`
	TotalCommission  decimal.Decimal `json:"totalCommission"`
	TransactionCount int             `json:"transactionCount"`
	Currency         string          `json:"currency"`
}

// CommissionReport groups the fees a customer paid in a period by product.
type CommissionReport struct {
	CustomerID string               `json:"customerId"`
	Start      time.Time            `json:"start"`
	End        time.Time            `json:"end"`
	Total      decimal.Decimal      `json:"total"`
	Currency   string               `json:"currency"`
	Products   []*ProductCommission `json:"products"`
}

// ProductActivity is a customer product with its ledger activity in a period.
type ProductActivity struct {
	ProductID        string           `json:"productId"`
	ProductType      product.Type     `json:"productType"`
	ProductCategory  product.Category `json:"productCategory"`
	Status           product.Status   `json:"status"`
	Name             string           `json:"name,omitempty"`
	Balance          decimal.Decimal  `json:"balance"`
	TransactionCount int              `json:"transactionCount"`
}

// Period is an inclusive time range.
type Period struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtefield=Start"`
}

// Validate checks that both ends are set and ordered.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return failure.Validation("start and end are required")
	}
	if err := validate.Struct(p); err != nil {
		return failure.Validation("end must not be before start")
	}
	return nil
}
