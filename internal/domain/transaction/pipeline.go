package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

// Pipeline runs the ordered business checks for a candidate transaction.
// The first failing check wins; no check mutates state.
type Pipeline struct {
	ledger Ledger
	now    func() time.Time
}

// NewPipeline creates a pipeline that counts monthly usage in ledger.
func NewPipeline(ledger Ledger, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{ledger: ledger, now: now}
}

// Validate checks tx against its resolved products and sets tx.Fee.
// target is only consulted for transfers.
func (p *Pipeline) Validate(ctx context.Context, tx *Transaction, source, target *product.BankProduct) error {
	if source == nil {
		return failure.NotFound("product", tx.SourceProductID)
	}
	tx.Fee = decimal.Zero

	if err := checkCategory(tx.Type, source); err != nil {
		return err
	}
	if source.IsCredit() {
		return nil
	}

	today := p.now()
	if err := checkFixedTermDay(source, today); err != nil {
		return err
	}

	count, err := p.monthlyCount(ctx, source.ID, today)
	if err != nil {
		return err
	}
	if err := checkMonthlyLimit(source, count); err != nil {
		return err
	}

	if tx.Type == TypeTransfer {
		if target == nil {
			return failure.NotFound("product", tx.TargetProductID)
		}
		if err := checkTransferAccounts(source, target); err != nil {
			return err
		}
	}

	tx.Fee = assessFee(source, count)
	return nil
}

func checkCategory(t Type, source *product.BankProduct) error {
	switch t {
	case TypePayment:
		if !source.IsCredit() {
			return ErrPaymentOnlyForCredit
		}
	case TypeWithdrawal:
		if !source.IsCredit() && !source.IsBankAccount() {
			return ErrInvalidTransactionForProduct
		}
	case TypeDeposit, TypeTransfer, TypePurchase:
		if !source.IsBankAccount() {
			return ErrInvalidTransactionForProduct
		}
	default:
		return ErrUnsupportedTransactionType
	}
	return nil
}

func checkFixedTermDay(source *product.BankProduct, today time.Time) error {
	d, ok := source.Details.(*product.FixedTermDetails)
	if !ok {
		return nil
	}
	if today.Day() != d.AllowedTransactionDay {
		return WrongDay(d.AllowedTransactionDay)
	}
	return nil
}

func (p *Pipeline) monthlyCount(ctx context.Context, productID string, today time.Time) (int, error) {
	start, end := MonthRange(today)
	txs, err := p.ledger.GetByProductAndRange(ctx, productID, start, end)
	if err != nil {
		return 0, failure.Persistence("count monthly transactions", err)
	}
	return len(txs), nil
}

func checkMonthlyLimit(source *product.BankProduct, count int) error {
	var limit *int
	switch d := source.Details.(type) {
	case *product.CurrentDetails:
		return nil
	case *product.SavingsDetails:
		limit = d.MonthlyLimit
	case *product.FixedTermDetails:
		limit = d.MonthlyLimit
	case *product.CreditDetails:
		return nil
	default:
		return fmt.Errorf("product %s: unknown details variant %T", source.ID, d)
	}
	if limit != nil && count >= *limit {
		return ErrMonthlyLimitReached
	}
	return nil
}

func isTransferAccount(p *product.BankProduct) bool {
	switch p.Details.(type) {
	case *product.CurrentDetails, *product.SavingsDetails:
		return true
	}
	return false
}

func checkTransferAccounts(source, target *product.BankProduct) error {
	if !isTransferAccount(source) {
		return ErrInvalidTransferSource
	}
	if !isTransferAccount(target) {
		return ErrInvalidTransferTarget
	}
	return nil
}

func assessFee(source *product.BankProduct, count int) decimal.Decimal {
	var freeLimit *int
	var fee decimal.Decimal
	switch d := source.Details.(type) {
	case *product.SavingsDetails:
		freeLimit, fee = d.FreeMonthlyTransactionLimit, d.TransactionFee
	case *product.CurrentDetails:
		freeLimit, fee = d.FreeMonthlyTransactionLimit, d.TransactionFee
	default:
		return decimal.Zero
	}
	if freeLimit != nil && count >= *freeLimit && fee.IsPositive() {
		return fee
	}
	return decimal.Zero
}
