package transaction

import (
	"strconv"

	"txengine/internal/domain/failure"
)

// Business rule violations
var (
	ErrInsufficientFunds            = failure.Rule(failure.CodeInsufficientFunds, "insufficient funds for this operation")
	ErrPaymentExceedsDebt           = failure.Rule(failure.CodePaymentExceedsDebt, "payment amount exceeds the outstanding debt")
	ErrAmountExceedsCreditLimit     = failure.Rule(failure.CodeAmountExceedsCreditLimit, "amount exceeds the available credit limit")
	ErrCreditLimitNotDefined        = failure.Rule(failure.CodeCreditLimitNotDefined, "credit limit is not defined for this product")
	ErrMonthlyLimitReached          = failure.Rule(failure.CodeMonthlyLimitReached, "monthly transaction limit reached")
	ErrInvalidTransferSource        = failure.Rule(failure.CodeInvalidTransferAccount, "transfer source must be a current or savings account").WithDetail("source")
	ErrInvalidTransferTarget        = failure.Rule(failure.CodeInvalidTransferAccount, "transfer target must be a current or savings account").WithDetail("target")
	ErrUnsupportedTransactionType   = failure.Rule(failure.CodeUnsupportedTransactionType, "unsupported transaction type")
	ErrInvalidTransactionForProduct = failure.Rule(failure.CodeInvalidTransactionForProduct, "transaction type is not allowed for this product")
	ErrPaymentOnlyForCredit         = failure.Rule(failure.CodeInvalidTransactionForProduct, "payments are only allowed on credit products").WithDetail("payment")
	ErrCardInactive                 = failure.Rule(failure.CodeInvalidTransactionForProduct, "debit card is not active").WithDetail("card")
)

// WrongDay reports a fixed-term transaction attempted outside its allowed day.
func WrongDay(day int) *failure.RuleViolation {
	return failure.Rule(failure.CodeWrongDay, "transactions on this product are only allowed on day %d", day).
		WithDetail(strconv.Itoa(day))
}
