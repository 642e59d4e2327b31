package transaction

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"txengine/internal/domain/failure"
)

// Type is the kind of money movement a transaction records.
type Type string

const (
	TypeDeposit     Type = "DEPOSIT"
	TypeWithdrawal  Type = "WITHDRAWAL"
	TypePayment     Type = "PAYMENT"
	TypeTransfer    Type = "TRANSFER"
	TypePurchase    Type = "PURCHASE"
	TypeMaintenance Type = "MAINTENANCE"
)

// AmountScale is the number of decimal places the ledger stores.
const AmountScale = 4

var (
	validate = validator.New()

	// maxAmount is the first value that no longer fits NUMERIC(19,4)
	maxAmount = decimal.New(1, 15)
)

// Transaction is a ledger record
type Transaction struct {
	ID              string          `json:"id"`
	SourceProductID string          `json:"sourceProductId"`
	TargetProductID string          `json:"targetProductId,omitempty"`
	Type            Type            `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Touches reports whether the transaction has productID on either endpoint.
func (t *Transaction) Touches(productID string) bool {
	return t.SourceProductID == productID || (t.TargetProductID != "" && t.TargetProductID == productID)
}

// CreateParams is the client input for a new transaction.
type CreateParams struct {
	SourceProductID string          `json:"sourceProductId" validate:"required"`
	TargetProductID string          `json:"targetProductId,omitempty"`
	Type            Type            `json:"type" validate:"required,oneof=DEPOSIT WITHDRAWAL PAYMENT TRANSFER PURCHASE MAINTENANCE"`
	Amount          decimal.Decimal `json:"amount"`
}

// Validate checks the input shape only; business rules run in the pipeline.
func (p CreateParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return failure.Validation("%s", describe(err))
	}
	if err := validateAmount(p.Amount); err != nil {
		return err
	}
	if p.Type == TypeTransfer {
		if p.TargetProductID == "" {
			return failure.Validation("targetProductId is required for transfers")
		}
		if p.TargetProductID == p.SourceProductID {
			return failure.Validation("source and target products must differ")
		}
	}
	return nil
}

// UpdateParams is the administrative correction input. It is not re-validated
// against business rules.
type UpdateParams struct {
	SourceProductID string          `json:"sourceProductId" validate:"required"`
	Type            Type            `json:"type" validate:"required,oneof=DEPOSIT WITHDRAWAL PAYMENT TRANSFER PURCHASE MAINTENANCE"`
	Amount          decimal.Decimal `json:"amount"`
}

// Validate checks the input shape.
func (p UpdateParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return failure.Validation("%s", describe(err))
	}
	if err := validateAmount(p.Amount); err != nil {
		return err
	}
	return nil
}

// CardParams is the input for charging a purchase to a debit card.
type CardParams struct {
	CardID string          `json:"cardId" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// Validate checks the input shape.
func (p CardParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return failure.Validation("%s", describe(err))
	}
	if err := validateAmount(p.Amount); err != nil {
		return err
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return failure.Validation("amount must be greater than zero")
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return failure.Validation("amount must have at most %d decimal places", AmountScale)
	}
	if !amount.LessThan(maxAmount) {
		return failure.Validation("amount must be less than %s", maxAmount)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
