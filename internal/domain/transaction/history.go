package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"txengine/internal/domain/product"
)

// MonthRange returns the first and last instants of the calendar month containing t,
// in t's location.
func MonthRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	_, end := MonthRange(t)
	return end.Day()
}

// Delta returns the signed effect of tx on productID's balance.
// Entries that do not touch the product contribute zero.
func Delta(tx *Transaction, productID string) decimal.Decimal {
	if tx.Type == TypeTransfer && tx.TargetProductID == productID && tx.SourceProductID != productID {
		return tx.Amount
	}
	if tx.SourceProductID != productID {
		return decimal.Zero
	}

	switch tx.Type {
	case TypeDeposit:
		return tx.Amount.Sub(tx.Fee)
	case TypeWithdrawal, TypePurchase, TypeMaintenance, TypeTransfer:
		return tx.Amount.Add(tx.Fee).Neg()
	case TypePayment:
		return tx.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// CreditDelta returns the signed effect of tx on the debt of credit product
// productID. Withdrawals and purchases raise the debt; payments lower it.
func CreditDelta(tx *Transaction, productID string) decimal.Decimal {
	if tx.SourceProductID != productID {
		return decimal.Zero
	}
	switch tx.Type {
	case TypeWithdrawal, TypePurchase:
		return tx.Amount.Add(tx.Fee)
	case TypePayment:
		return tx.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// DailyBalances reconstructs end-of-day balances of productID for the month
// containing now, for days 1 through now's day. The running total starts at
// balance, which is the product's current balance and not a month-start
// snapshot, then adds each day's net delta in day order.
func DailyBalances(balance decimal.Decimal, productID string, txs []*Transaction, now time.Time) []decimal.Decimal {
	return dailyBalances(balance, txs, now, func(tx *Transaction) decimal.Decimal {
		return Delta(tx, productID)
	})
}

func dailyBalances(balance decimal.Decimal, txs []*Transaction, now time.Time, delta func(*Transaction) decimal.Decimal) []decimal.Decimal {
	days := now.Day()
	perDay := make([]decimal.Decimal, days+1)
	start, _ := MonthRange(now)

	for _, tx := range txs {
		ts := tx.Timestamp.In(now.Location())
		if ts.Before(start) || ts.Year() != now.Year() || ts.Month() != now.Month() || ts.Day() > days {
			continue
		}
		perDay[ts.Day()] = perDay[ts.Day()].Add(delta(tx))
	}

	series := make([]decimal.Decimal, 0, days)
	running := balance
	for day := 1; day <= days; day++ {
		running = running.Add(perDay[day])
		series = append(series, running)
	}
	return series
}

// AverageBalance returns the mean of the reconstructed daily series of a bank
// account.
func AverageBalance(balance decimal.Decimal, productID string, txs []*Transaction, now time.Time) decimal.Decimal {
	return average(balance, DailyBalances(balance, productID, txs, now))
}

// ProductAverageBalance averages p's daily series. For credit products the
// series is the outstanding debt.
func ProductAverageBalance(p *product.BankProduct, txs []*Transaction, now time.Time) decimal.Decimal {
	if !p.IsCredit() {
		return AverageBalance(p.Balance, p.ID, txs, now)
	}
	series := dailyBalances(p.Balance, txs, now, func(tx *Transaction) decimal.Decimal {
		return CreditDelta(tx, p.ID)
	})
	return average(p.Balance, series)
}

func average(balance decimal.Decimal, series []decimal.Decimal) decimal.Decimal {
	if len(series) == 0 {
		return balance
	}
	sum := decimal.Zero
	for _, b := range series {
		sum = sum.Add(b)
	}
	return sum.Div(decimal.NewFromInt(int64(len(series))))
}
