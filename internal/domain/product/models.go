package product

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Type identifies the product family and selects the Details variant.
type Type string

const (
	TypeSavings   Type = "SAVINGS"
	TypeCurrent   Type = "CURRENT"
	TypeFixedTerm Type = "FIXED_TERM"
	TypeCredit    Type = "CREDIT"
)

// Status of a product as kept by the registry
type Status string

const (
	StatusActive            Status = "ACTIVE"
	StatusBlockedAvgBalance Status = "BLOCKED_AVG_BALANCE"
)

// Category groups product types for reporting.
type Category string

const (
	CategoryBank   Category = "BANK"
	CategoryCredit Category = "CREDIT"
)

// BankProduct is a whole-product snapshot as read from and written to the registry.
type BankProduct struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Type       Type            `json:"type"`
	Status     Status          `json:"status"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
	Holders    []string        `json:"holders,omitempty"`
	Signers    []string        `json:"signers,omitempty"`
	Details    Details         `json:"details"`
}

// Details is the closed set of per-type product settings:
// *SavingsDetails, *CurrentDetails, *FixedTermDetails and *CreditDetails.
type Details interface {
	productType() Type
}

type SavingsDetails struct {
	MaintenanceFee                decimal.Decimal `json:"maintenanceFee"`
	MonthlyLimit                  *int            `json:"monthlyLimit,omitempty"`
	FreeMonthlyTransactionLimit   *int            `json:"freeMonthlyTransactionLimit,omitempty"`
	TransactionFee                decimal.Decimal `json:"transactionFee"`
	RequiredMonthlyAverageBalance decimal.Decimal `json:"requiredMonthlyAverageBalance"`
}

type CurrentDetails struct {
	MaintenanceFee              decimal.Decimal `json:"maintenanceFee"`
	MonthlyLimit                *int            `json:"monthlyLimit,omitempty"`
	FreeMonthlyTransactionLimit *int            `json:"freeMonthlyTransactionLimit,omitempty"`
	TransactionFee              decimal.Decimal `json:"transactionFee"`
}

type FixedTermDetails struct {
	MaintenanceFee        decimal.Decimal `json:"maintenanceFee"`
	MonthlyLimit          *int            `json:"monthlyLimit,omitempty"`
	AllowedTransactionDay int             `json:"allowedTransactionDay"`
}

type CreditDetails struct {
	CreditLimit decimal.NullDecimal `json:"creditLimit"`
}

func (*SavingsDetails) productType() Type   { return TypeSavings }
func (*CurrentDetails) productType() Type   { return TypeCurrent }
func (*FixedTermDetails) productType() Type { return TypeFixedTerm }
func (*CreditDetails) productType() Type    { return TypeCredit }

// IsValidType reports whether t names a known product type.
func IsValidType(t Type) bool {
	switch t {
	case TypeSavings, TypeCurrent, TypeFixedTerm, TypeCredit:
		return true
	}
	return false
}

// IsCredit reports whether the product carries credit details.
func (p *BankProduct) IsCredit() bool {
	_, ok := p.Details.(*CreditDetails)
	return ok
}

// IsBankAccount reports whether the product is a savings, current or fixed-term account.
func (p *BankProduct) IsBankAccount() bool {
	switch p.Details.(type) {
	case *SavingsDetails, *CurrentDetails, *FixedTermDetails:
		return true
	}
	return false
}

// Category returns CREDIT for credit products and BANK for everything else.
func (p *BankProduct) Category() Category {
	if p.IsCredit() {
		return CategoryCredit
	}
	return CategoryBank
}

// MaintenanceFee returns the monthly maintenance fee of bank accounts, zero for credit.
func (p *BankProduct) MaintenanceFee() (decimal.Decimal, error) {
	switch d := p.Details.(type) {
	case *SavingsDetails:
		return d.MaintenanceFee, nil
	case *CurrentDetails:
		return d.MaintenanceFee, nil
	case *FixedTermDetails:
		return d.MaintenanceFee, nil
	case *CreditDetails:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("product %s: unknown details variant %T", p.ID, d)
	}
}

// Clone returns a deep copy so mutations never leak into the caller's snapshot.
func (p *BankProduct) Clone() *BankProduct {
	c := *p
	c.Holders = append([]string(nil), p.Holders...)
	c.Signers = append([]string(nil), p.Signers...)
	switch d := p.Details.(type) {
	case *SavingsDetails:
		dc := *d
		c.Details = &dc
	case *CurrentDetails:
		dc := *d
		c.Details = &dc
	case *FixedTermDetails:
		dc := *d
		c.Details = &dc
	case *CreditDetails:
		dc := *d
		c.Details = &dc
	}
	return &c
}

// UnmarshalJSON decodes the details payload into the variant selected by type.
func (p *BankProduct) UnmarshalJSON(data []byte) error {
	type alias BankProduct
	aux := struct {
		*alias
		Details json.RawMessage `json:"details"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var details Details
	switch p.Type {
	case TypeSavings:
		details = &SavingsDetails{}
	case TypeCurrent:
		details = &CurrentDetails{}
	case TypeFixedTerm:
		details = &FixedTermDetails{}
	case TypeCredit:
		details = &CreditDetails{}
	default:
		return fmt.Errorf("unknown product type %q", p.Type)
	}

	if len(aux.Details) > 0 && string(aux.Details) != "null" {
		if err := json.Unmarshal(aux.Details, details); err != nil {
			return fmt.Errorf("failed to decode %s details: %w", p.Type, err)
		}
	}
	p.Details = details
	return nil
}

// Card is a debit card with its primary and linked accounts.
type Card struct {
	ID               string   `json:"id"`
	CardNumber       string   `json:"cardNumber"`
	CustomerID       string   `json:"customerId"`
	PrimaryAccountID string   `json:"primaryAccountId"`
	LinkedAccountIDs []string `json:"linkedAccountIds"`
	Active           bool     `json:"active"`
}

// ChargeOrder returns the primary account followed by the linked accounts,
// skipping blanks, the primary and repeats.
func (c *Card) ChargeOrder() []string {
	seen := make(map[string]struct{}, len(c.LinkedAccountIDs)+1)
	var order []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	add(c.PrimaryAccountID)
	for _, id := range c.LinkedAccountIDs {
		add(id)
	}
	return order
}
