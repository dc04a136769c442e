package depreciation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScheduleLastMonthAbsorbsResidual(t *testing.T) {
	rows := Schedule(decimal.RequireFromString("1000.00"), 3, date(2024, 1, 1))
	require.Len(t, rows, 3)

	assert.Equal(t, "333.33", rows[0].Charge.StringFixed(2))
	assert.Equal(t, "666.67", rows[0].Closing.StringFixed(2))
	assert.Equal(t, "333.33", rows[1].Charge.StringFixed(2))
	assert.Equal(t, "333.34", rows[1].Closing.StringFixed(2))
	assert.Equal(t, "333.34", rows[2].Charge.StringFixed(2))
	assert.True(t, rows[2].Closing.IsZero())

	assert.Equal(t, date(2024, 1, 1), rows[0].Period)
	assert.Equal(t, date(2024, 3, 1), rows[2].Period)
}

func TestScheduleThirtySixMonths(t *testing.T) {
	rows := Schedule(decimal.RequireFromString("12000.00"), 36, date(2024, 1, 1))
	require.Len(t, rows, 36)

	for i, r := range rows[:35] {
		assert.Equal(t, "333.33", r.Charge.StringFixed(2), "month %d", i+1)
		assert.Equal(t, date(2024, 1, 1).AddDate(0, i, 0), r.Period)
	}
	assert.Equal(t, "333.45", rows[34].Closing.StringFixed(2))

	last := rows[35]
	assert.Equal(t, date(2026, 12, 1), last.Period)
	assert.Equal(t, "333.45", last.Opening.StringFixed(2))
	assert.Equal(t, "333.45", last.Charge.StringFixed(2))
	assert.Equal(t, "0.00", last.Closing.StringFixed(2))
	assert.Equal(t, "12000.00", Total(rows).StringFixed(2))
}

func TestScheduleInvalidInputsAreEmpty(t *testing.T) {
	assert.Empty(t, Schedule(decimal.Zero, 12, date(2024, 1, 1)))
	assert.Empty(t, Schedule(decimal.NewFromInt(-10), 12, date(2024, 1, 1)))
	assert.Empty(t, Schedule(decimal.NewFromInt(100), 0, date(2024, 1, 1)))
}

func TestScheduleChargesSumToValue(t *testing.T) {
	values := []string{"0.05", "1.00", "99.99", "1000.00", "12345.67", "7.01"}
	for _, raw := range values {
		value := decimal.RequireFromString(raw)
		for months := 1; months <= 61; months += 6 {
			rows := Schedule(value, months, date(2023, 5, 31))
			require.Len(t, rows, months)
			assert.True(t, Total(rows).Equal(value), "value=%s months=%d", raw, months)
			assert.True(t, rows[len(rows)-1].Closing.IsZero())
			for _, r := range rows {
				assert.False(t, r.Closing.IsNegative(), "value=%s months=%d", raw, months)
			}
		}
	}
}

func TestAddMonthsClampsDay(t *testing.T) {
	assert.Equal(t, date(2024, 2, 29), AddMonths(date(2024, 1, 31), 1))
	assert.Equal(t, date(2023, 2, 28), AddMonths(date(2023, 1, 31), 1))
	assert.Equal(t, date(2025, 1, 15), AddMonths(date(2024, 12, 15), 1))
	assert.Equal(t, date(2023, 12, 31), AddMonths(date(2024, 3, 31), -3))
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 14, MonthsBetween(date(2020, 1, 1), date(2021, 3, 31)))
	assert.Equal(t, -2, MonthsBetween(date(2021, 3, 1), date(2021, 1, 1)))
	assert.Equal(t, 0, MonthsBetween(date(2021, 3, 1), date(2021, 3, 31)))
}

func TestChargedWindows(t *testing.T) {
	rows := Schedule(decimal.NewFromInt(1200), 12, date(2024, 1, 1))
	assert.Equal(t, "300.00", ChargedBefore(rows, date(2024, 4, 1)).StringFixed(2))
	assert.Equal(t, "200.00", ChargedBetween(rows, date(2024, 6, 1), date(2024, 7, 31)).StringFixed(2))
}
