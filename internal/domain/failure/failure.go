package failure

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrBusinessRule = errors.New("business rule violation")
	ErrNotFound     = errors.New("not found")
	ErrUpstream     = errors.New("upstream unavailable")
	ErrPersistence  = errors.New("persistence error")
)

// Rule violation codes
const (
	CodeInsufficientFunds            = "INSUFFICIENT_FUNDS"
	CodePaymentExceedsDebt           = "PAYMENT_EXCEEDS_DEBT"
	CodeAmountExceedsCreditLimit     = "AMOUNT_EXCEEDS_CREDIT_LIMIT"
	CodeCreditLimitNotDefined        = "CREDIT_LIMIT_NOT_DEFINED"
	CodeWrongDay                     = "WRONG_DAY"
	CodeMonthlyLimitReached          = "MONTHLY_LIMIT_REACHED"
	CodeInvalidTransferAccount       = "INVALID_TRANSFER_ACCOUNT"
	CodeUnsupportedTransactionType   = "UNSUPPORTED_TRANSACTION_TYPE"
	CodeInvalidTransactionForProduct = "INVALID_TRANSACTION_FOR_PRODUCT"
)

// RuleViolation is a business rule failure. Under errors.Is it matches
// ErrBusinessRule and any RuleViolation with the same code whose Detail is
// empty or equal to its own.
type RuleViolation struct {
	Code    string
	Detail  string
	Message string
}

func (e *RuleViolation) Error() string {
	return e.Message
}

func (e *RuleViolation) Is(target error) bool {
	if target == ErrBusinessRule {
		return true
	}
	var rv *RuleViolation
	if errors.As(target, &rv) {
		return rv.Code == e.Code && (rv.Detail == "" || rv.Detail == e.Detail)
	}
	return false
}

// Rule returns a new RuleViolation with a formatted message.
func Rule(code, format string, args ...any) *RuleViolation {
	return &RuleViolation{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail returns a copy of e qualified by detail.
func (e *RuleViolation) WithDetail(detail string) *RuleViolation {
	c := *e
	c.Detail = detail
	return &c
}

// Validation wraps a malformed-input message as ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing resource and id.
func NotFound(resource, id string) error {
	return fmt.Errorf("%s %s: %w", resource, id, ErrNotFound)
}

// Upstream wraps a remote registry failure as ErrUpstream.
func Upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// Persistence wraps a ledger failure as ErrPersistence.
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Kind returns the kind sentinel err belongs to, or nil for unclassified errors.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrBusinessRule, ErrNotFound, ErrUpstream, ErrPersistence} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Code returns the rule violation code carried by err, if any.
func Code(err error) string {
	var rv *RuleViolation
	if errors.As(err, &rv) {
		return rv.Code
	}
	return ""
}
