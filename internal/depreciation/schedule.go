// Package depreciation computes straight-line monthly depreciation schedules.
package depreciation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Row is one month of a schedule.
type Row struct {
	Period  time.Time       `json:"period"`
	Opening decimal.Decimal `json:"opening"`
	Charge  decimal.Decimal `json:"charge"`
	Closing decimal.Decimal `json:"closing"`
}

// Schedule returns the straight-line schedule for value over months starting
// at start. The monthly charge is rounded to cents and the last month absorbs
// the residual so the closing balance of the final row is exactly zero.
// A non-positive value or month count yields an empty schedule.
func Schedule(value decimal.Decimal, months int, start time.Time) []Row {
	if !value.IsPositive() || months <= 0 {
		return nil
	}
	value = value.Round(2)
	charge := value.Div(decimal.NewFromInt(int64(months))).Round(2)
	start = Date(start)
	rows := make([]Row, 0, months)
	balance := value
	for i := 0; i < months; i++ {
		c := charge
		if i == months-1 || c.GreaterThan(balance) {
			c = balance
		}
		closing := balance.Sub(c).Round(2)
		rows = append(rows, Row{
			Period:  AddMonths(start, i),
			Opening: balance,
			Charge:  c,
			Closing: closing,
		})
		balance = closing
	}
	return rows
}

// Total sums the charges of rows.
func Total(rows []Row) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Charge)
	}
	return sum
}

// ChargedBetween sums the charges whose period falls in [from, to].
func ChargedBetween(rows []Row, from, to time.Time) decimal.Decimal {
	from, to = Date(from), Date(to)
	sum := decimal.Zero
	for _, r := range rows {
		if r.Period.Before(from) || r.Period.After(to) {
			continue
		}
		sum = sum.Add(r.Charge)
	}
	return sum
}

// ChargedBefore sums the charges whose period precedes cutoff.
func ChargedBefore(rows []Row, cutoff time.Time) decimal.Decimal {
	cutoff = Date(cutoff)
	sum := decimal.Zero
	for _, r := range rows {
		if !r.Period.Before(cutoff) {
			break
		}
		sum = sum.Add(r.Charge)
	}
	return sum
}
