package simulation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rvu/internal/review"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// fixtureAssets returns a revised machine (12,000 over 120 months, extended to
// 2035) and an untouched vehicle (2,400 over 24 months) in a period whose
// base date is 2025-01-01.
func fixtureAssets() []Asset {
	base := day(2025, 1, 1)
	reviewed := review.ItemStatusReviewed
	return []Asset{
		{
			BaseDate: &base,
			Item: review.Item{
				ID:               1,
				AssetNumber:      "M-100",
				Description:      "Press",
				StartDate:        day(2020, 1, 1),
				OriginalMonths:   120,
				AcquisitionValue: decimal.NewFromInt(12000),
				AccountClass:     "1.2.30",
				ClassDescription: "Machinery",
				Status:           reviewed,
				Changed:          true,
				Revision:         &review.Revision{Months: 120, EndDate: day(2035, 1, 1)},
			},
		},
		{
			BaseDate: &base,
			Item: review.Item{
				ID:               2,
				AssetNumber:      "V-7",
				StartDate:        day(2024, 1, 1),
				OriginalMonths:   24,
				AcquisitionValue: decimal.NewFromInt(2400),
				Status:           review.ItemStatusPending,
			},
		},
		{
			BaseDate: &base,
			Item: review.Item{
				ID:             3,
				AssetNumber:    "Z-0",
				StartDate:      day(2024, 1, 1),
				OriginalMonths: 24,
				Status:         review.ItemStatusPending,
			},
		},
	}
}

func window() Filter {
	return Filter{CompanyID: 10, From: day(2025, 1, 1), To: day(2025, 12, 31), Status: StatusAll}
}

func TestSimulateComparesCarriedBalanceFromBaseDate(t *testing.T) {
	res := Simulate(fixtureAssets(), window())

	require.Len(t, res.Analytic, 2, "zero-value asset is skipped")
	assert.Equal(t, Notice, res.Notice)

	press := res.Analytic[0]
	assert.Equal(t, "M-100", press.AssetNumber)
	assert.Equal(t, "1200.00", fixed(press.OriginalCharge))
	assert.Equal(t, "600.00", fixed(press.RevisedCharge))
	assert.Equal(t, "-600.00", fixed(press.Difference))
	assert.Equal(t, "-50.00", fixed(press.DifferencePct))
	assert.Equal(t, 15, press.RevisedYears)
	assert.Equal(t, 0, press.RevisedMonths)
	assert.Equal(t, "2030-01-01", press.OriginalEnd)
	assert.Equal(t, "2035-01-01", press.RevisedEnd)
	assert.Equal(t, Adjusted, press.Adjustment)

	vehicle := res.Analytic[1]
	assert.Equal(t, "1200.00", fixed(vehicle.OriginalCharge))
	assert.Equal(t, "1200.00", fixed(vehicle.RevisedCharge))
	assert.True(t, vehicle.Difference.IsZero())
	assert.Equal(t, Unadjusted, vehicle.Adjustment)
}

func TestSimulateSummaryGroupsByClassWithTotal(t *testing.T) {
	res := Simulate(fixtureAssets(), window())

	require.Len(t, res.Summary, 3)
	assert.Equal(t, "1.2.30", res.Summary[0].AccountClass)
	assert.Equal(t, "Machinery", res.Summary[0].ClassDescription)
	assert.Equal(t, UnclassifiedClass, res.Summary[1].AccountClass)

	total := res.Summary[2]
	assert.Equal(t, TotalClass, total.AccountClass)
	assert.Equal(t, 2, total.Assets)
	assert.Equal(t, "2400.00", fixed(total.OriginalTotal))
	assert.Equal(t, "1800.00", fixed(total.RevisedTotal))
	assert.Equal(t, "-25.00", fixed(total.DifferencePct))
}

func TestSimulateStatusFilter(t *testing.T) {
	f := window()
	f.Status = StatusRevised
	res := Simulate(fixtureAssets(), f)
	require.Len(t, res.Analytic, 1)
	assert.Equal(t, int64(1), res.Analytic[0].ItemID)

	f.Status = StatusNotRevised
	res = Simulate(fixtureAssets(), f)
	require.Len(t, res.Analytic, 1)
	assert.Equal(t, int64(2), res.Analytic[0].ItemID)
}

func TestSimulateWindowBeforeBaseDateStartsAtBase(t *testing.T) {
	f := window()
	f.From = day(2023, 1, 1)
	res := Simulate(fixtureAssets(), f)

	require.NotEmpty(t, res.Analytic)
	assert.Equal(t, "1200.00", fixed(res.Analytic[0].OriginalCharge))
}

func TestSimulateEmptyInputHasNoTotalRow(t *testing.T) {
	res := Simulate(nil, window())
	assert.Empty(t, res.Analytic)
	assert.Empty(t, res.Summary)
}

func TestFilterValidate(t *testing.T) {
	f := Filter{CompanyID: 10, From: day(2025, 1, 1), To: day(2025, 12, 31), AccountClass: " 1.2 "}
	require.NoError(t, f.Validate())
	assert.Equal(t, StatusAll, f.Status)
	assert.Equal(t, "1.2", f.AccountClass)

	bad := []Filter{
		{From: day(2025, 1, 1), To: day(2025, 2, 1)},
		{CompanyID: 10, To: day(2025, 2, 1)},
		{CompanyID: 10, From: day(2025, 2, 1), To: day(2025, 1, 1)},
		{CompanyID: 10, From: day(2025, 1, 1), To: day(2025, 2, 1), Status: "maybe"},
	}
	for _, f := range bad {
		assert.Error(t, f.Validate())
	}
}

func TestItemScheduleUsesEffectiveEnd(t *testing.T) {
	it := fixtureAssets()[1].Item
	view := ItemSchedule(it)
	assert.Equal(t, 24, view.Months)
	assert.Equal(t, "2026-01-01", view.EndDate)
	require.Len(t, view.Rows, 24)
	assert.Equal(t, "100.00", fixed(view.Rows[0].Charge))
	assert.True(t, view.Rows[23].Closing.IsZero())

	it.Revision = &review.Revision{EndDate: day(2028, 1, 1)}
	view = ItemSchedule(it)
	assert.Equal(t, 48, view.Months)
	assert.Equal(t, "50.00", fixed(view.Rows[0].Charge))
}

func TestSummarizeCountsStatuses(t *testing.T) {
	assets := fixtureAssets()
	reviewer := int64(7)
	assets[0].ReviewerID = &reviewer
	assets[2].Item.Status = review.ItemStatusApproved
	period := review.Period{ID: 4, Code: "RV2025-01", Status: review.PeriodStatusInProgress}

	sum := Summarize(period, assets)
	assert.Equal(t, "RV2025-01", sum.Code)
	assert.Equal(t, StatusCounts{Pending: 1, Reviewed: 1, Approved: 1}, sum.Counts)
	require.Len(t, sum.Items, 3)
	press := sum.Items[0]
	require.NotNil(t, press.RevisedYears)
	assert.Equal(t, 15, *press.RevisedYears)
	assert.Equal(t, "2035-01-01", *press.RevisedEnd)
	assert.Equal(t, &reviewer, press.ReviewerID)
	assert.Nil(t, sum.Items[1].RevisedYears)
}
