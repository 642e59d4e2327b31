package transaction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"txengine/internal/domain/product"
)

// Change is a new product snapshot and the signed balance delta that produced it.
type Change struct {
	Before *product.BankProduct
	After  *product.BankProduct
	Delta  decimal.Decimal
}

// Apply computes the balance effect of a validated transaction. It returns one
// change for the source and, for transfers, a second one for the target.
// The input products are never modified.
func Apply(tx *Transaction, source, target *product.BankProduct) ([]Change, error) {
	if tx.Fee.IsNegative() {
		return nil, fmt.Errorf("transaction fee must not be negative, got %s", tx.Fee)
	}

	switch d := source.Details.(type) {
	case *product.CreditDetails:
		return applyCredit(tx, source, d)
	case *product.SavingsDetails, *product.CurrentDetails, *product.FixedTermDetails:
		return applyBank(tx, source, target)
	default:
		return nil, fmt.Errorf("product %s: unknown details variant %T", source.ID, d)
	}
}

func applyCredit(tx *Transaction, source *product.BankProduct, d *product.CreditDetails) ([]Change, error) {
	debt := source.Balance
	switch tx.Type {
	case TypePayment:
		if tx.Amount.GreaterThan(debt) {
			return nil, ErrPaymentExceedsDebt
		}
		return []Change{change(source, tx.Amount.Neg())}, nil
	case TypeWithdrawal:
		if !d.CreditLimit.Valid {
			return nil, ErrCreditLimitNotDefined
		}
		if debt.Add(tx.Amount).GreaterThan(d.CreditLimit.Decimal) {
			return nil, ErrAmountExceedsCreditLimit
		}
		return []Change{change(source, tx.Amount)}, nil
	default:
		return nil, ErrInvalidTransactionForProduct
	}
}

func applyBank(tx *Transaction, source, target *product.BankProduct) ([]Change, error) {
	switch tx.Type {
	case TypeDeposit:
		return []Change{change(source, tx.Amount.Sub(tx.Fee))}, nil
	case TypeWithdrawal, TypePurchase:
		debit := tx.Amount.Add(tx.Fee)
		if source.Balance.LessThan(debit) {
			return nil, ErrInsufficientFunds
		}
		return []Change{change(source, debit.Neg())}, nil
	case TypeTransfer:
		if target == nil {
			return nil, fmt.Errorf("transfer %s has no target product", tx.ID)
		}
		debit := tx.Amount.Add(tx.Fee)
		if source.Balance.LessThan(debit) {
			return nil, ErrInsufficientFunds
		}
		return []Change{change(source, debit.Neg()), change(target, tx.Amount)}, nil
	case TypePayment:
		return nil, ErrPaymentOnlyForCredit
	default:
		return nil, ErrUnsupportedTransactionType
	}
}

func change(p *product.BankProduct, delta decimal.Decimal) Change {
	after := p.Clone()
	after.Balance = p.Balance.Add(delta)
	return Change{Before: p, After: after, Delta: delta}
}
