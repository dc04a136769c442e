package simulation

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rvu/internal/depreciation"
	"github.com/odyssey-erp/odyssey-rvu/internal/review"
)

var hundred = decimal.NewFromInt(100)

// Simulate computes the analytic and summary rows for assets. Items without
// a positive value, a positive original life or a start date are skipped.
// The revised horizon starts at the period base date (else its open date,
// else the item start) from the balance carried forward to that date.
func Simulate(assets []Asset, f Filter) Result {
	from, to := depreciation.Date(f.From), depreciation.Date(f.To)
	res := Result{Analytic: []AnalyticRow{}, Summary: []SummaryRow{}, Notice: Notice}
	type bucket struct {
		desc     string
		count    int
		original decimal.Decimal
		revised  decimal.Decimal
	}
	buckets := map[string]*bucket{}

	for _, a := range assets {
		it := a.Item
		revised := isRevised(it)
		if f.Status == StatusRevised && !revised {
			continue
		}
		if f.Status == StatusNotRevised && revised {
			continue
		}
		row, ok := analyze(a, from, to)
		if !ok {
			continue
		}
		if revised && it.Revision != nil {
			row.Adjustment = Adjusted
		}
		res.Analytic = append(res.Analytic, row)

		class := it.AccountClass
		if class == "" {
			class = UnclassifiedClass
		}
		b, ok := buckets[class]
		if !ok {
			b = &bucket{desc: it.ClassDescription}
			buckets[class] = b
		}
		b.count++
		b.original = b.original.Add(row.OriginalCharge)
		b.revised = b.revised.Add(row.RevisedCharge)
	}

	classes := make([]string, 0, len(buckets))
	for class := range buckets {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	var total SummaryRow
	total.AccountClass = TotalClass
	for _, class := range classes {
		b := buckets[class]
		res.Summary = append(res.Summary, summaryRow(class, b.desc, b.count, b.original, b.revised))
		total.Assets += b.count
		total.OriginalTotal = total.OriginalTotal.Add(b.original)
		total.RevisedTotal = total.RevisedTotal.Add(b.revised)
	}
	if total.Assets > 0 {
		res.Summary = append(res.Summary, summaryRow(TotalClass, "", total.Assets, total.OriginalTotal, total.RevisedTotal))
	}
	return res
}

func analyze(a Asset, from, to time.Time) (AnalyticRow, bool) {
	it := a.Item
	value := it.AcquisitionValue
	originalTotal := it.OriginalTotal()
	if !value.IsPositive() || originalTotal <= 0 || it.StartDate.IsZero() {
		return AnalyticRow{}, false
	}
	start := depreciation.Date(it.StartDate)
	originalEnd := it.OriginalEnd()
	base := horizonBase(a)
	windowStart := from
	if base.After(windowStart) {
		windowStart = base
	}

	originalRows := depreciation.Schedule(value, depreciation.MonthsBetween(start, originalEnd), start)
	originalCharge := depreciation.ChargedBetween(originalRows, windowStart, to)

	revisedCharge := originalCharge
	revisedEnd := originalEnd
	revisedTotal := originalTotal
	if it.Revision != nil {
		revisedEnd = depreciation.Date(it.Revision.EndDate)
		revisedTotal = depreciation.MonthsBetween(start, revisedEnd)
		carried := value.Sub(depreciation.ChargedBefore(originalRows, base))
		if carried.IsNegative() {
			carried = decimal.Zero
		}
		revisedRows := depreciation.Schedule(carried, depreciation.MonthsBetween(base, revisedEnd), base)
		revisedCharge = depreciation.ChargedBetween(revisedRows, windowStart, to)
	}

	diff := revisedCharge.Sub(originalCharge)
	return AnalyticRow{
		ItemID:           it.ID,
		AssetNumber:      it.AssetNumber,
		SubNumber:        it.SubNumber,
		StartDate:        start.Format(time.DateOnly),
		Description:      it.Description,
		AccountClass:     it.AccountClass,
		ClassDescription: it.ClassDescription,
		OriginalYears:    originalTotal / 12,
		OriginalMonths:   originalTotal % 12,
		OriginalEnd:      originalEnd.Format(time.DateOnly),
		OriginalCharge:   originalCharge.Round(2),
		RevisedYears:     revisedTotal / 12,
		RevisedMonths:    revisedTotal % 12,
		RevisedEnd:       revisedEnd.Format(time.DateOnly),
		RevisedCharge:    revisedCharge.Round(2),
		Difference:       diff.Round(2),
		DifferencePct:    percent(diff, originalCharge),
		Adjustment:       Unadjusted,
	}, true
}

func summaryRow(class, desc string, count int, original, revised decimal.Decimal) SummaryRow {
	diff := revised.Sub(original)
	return SummaryRow{
		AccountClass:     class,
		ClassDescription: desc,
		Assets:           count,
		OriginalTotal:    original.Round(2),
		RevisedTotal:     revised.Round(2),
		Difference:       diff.Round(2),
		DifferencePct:    percent(diff, original),
	}
}

func percent(diff, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return diff.Div(base).Mul(hundred).Round(4)
}

func horizonBase(a Asset) time.Time {
	switch {
	case a.BaseDate != nil:
		return depreciation.Date(*a.BaseDate)
	case !a.OpenedOn.IsZero():
		return depreciation.Date(a.OpenedOn)
	default:
		return depreciation.Date(a.Item.StartDate)
	}
}

// isRevised reports whether a reviewer has touched the item.
func isRevised(it review.Item) bool {
	switch it.Status {
	case review.ItemStatusReviewed, review.ItemStatusApproved:
		return true
	}
	return it.Changed || strings.TrimSpace(it.Justification) != "" || it.Condition != nil
}

// ItemSchedule builds the schedule of an item over its effective life.
func ItemSchedule(it review.Item) ScheduleView {
	start := depreciation.Date(it.StartDate)
	end := it.EffectiveEnd()
	months := depreciation.MonthsBetween(start, end)
	rows := depreciation.Schedule(it.AcquisitionValue, months, start)
	view := ScheduleView{
		ItemID:    it.ID,
		Months:    max(months, 0),
		StartDate: start.Format(time.DateOnly),
		EndDate:   end.Format(time.DateOnly),
		Rows:      make([]Entry, 0, len(rows)),
	}
	for _, r := range rows {
		view.Rows = append(view.Rows, Entry{
			Period:  r.Period.Format(time.DateOnly),
			Opening: r.Opening,
			Charge:  r.Charge,
			Closing: r.Closing,
		})
	}
	return view
}

// Summarize builds the review read model of a period.
func Summarize(period review.Period, assets []Asset) PeriodSummary {
	out := PeriodSummary{
		PeriodID: period.ID,
		Code:     period.Code,
		Status:   string(period.Status),
		Items:    make([]SummaryItem, 0, len(assets)),
	}
	for _, a := range assets {
		it := a.Item
		current := it.OriginalTotal()
		row := SummaryItem{
			ItemID:        it.ID,
			AssetNumber:   it.AssetNumber,
			SubNumber:     it.SubNumber,
			Description:   it.Description,
			CurrentYears:  current / 12,
			CurrentMonths: current % 12,
			CurrentEnd:    it.OriginalEnd().Format(time.DateOnly),
			ReviewerID:    a.ReviewerID,
			Status:        string(it.Status),
			Changed:       it.Changed,
			Justification: it.Justification,
		}
		if it.Revision != nil {
			revised := it.RevisedTotal()
			years, months := revised/12, revised%12
			end := it.Revision.EndDate.Format(time.DateOnly)
			row.RevisedYears, row.RevisedMonths, row.RevisedEnd = &years, &months, &end
		}
		if it.Condition != nil {
			row.ConditionLabel = string(*it.Condition)
		}
		switch it.Status {
		case review.ItemStatusReviewed:
			out.Counts.Reviewed++
		case review.ItemStatusApproved:
			out.Counts.Approved++
		case review.ItemStatusReverted:
			out.Counts.Reverted++
		default:
			out.Counts.Pending++
		}
		out.Items = append(out.Items, row)
	}
	return out
}
