package review

import (
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rvu/internal/depreciation"
)

// DefaultNearTermMonths is the remaining-life window that forces a
// justification and blocks auto-approval.
const DefaultNearTermMonths = 18

// ConfirmedJustification is recorded when a reviewer confirms the current
// life without supplying a revision or a justification.
const ConfirmedJustification = "Useful life confirmed correct."

// Policy carries the tunable thresholds of the revision rules.
//
// NearTermMonths is inclusive on the near-term side: a life ending exactly
// NearTermMonths months from today still needs a justification when revised
// and is never auto-approved. Auto-approval requires strictly more remaining
// months than NearTermMonths.
type Policy struct {
	NearTermMonths int
}

func (p Policy) nearTerm() int {
	if p.NearTermMonths <= 0 {
		return DefaultNearTermMonths
	}
	return p.NearTermMonths
}

// Decision is the reviewer's submission for one item, after the target life
// has been resolved to a Revision.
type Decision struct {
	Revision        *Revision
	Condition       *Condition
	Justification   string
	Increment       *Increment
	IncrementReason string
	AuthorID        *int64
}

// Outcome is the item after a decision was applied.
type Outcome struct {
	Item          Item
	PreviousTotal int
	RevisedTotal  int
	AutoApproved  bool
}

// RevisionFromBase resolves a revision expressed relative to the period's
// new useful-life base date. Exactly one of months or end must be set.
func RevisionFromBase(period Period, months *int, end *time.Time) (*Revision, error) {
	if months == nil && end == nil {
		return nil, nil
	}
	if months != nil && end != nil {
		return nil, invalidf("provide either revised months or revised end date")
	}
	if period.BaseDate == nil {
		return nil, ErrBaseDateMissing
	}
	base := depreciation.Date(*period.BaseDate)
	if months != nil {
		if *months <= 0 {
			return nil, invalidf("revised months must be positive")
		}
		return &Revision{Months: *months, EndDate: depreciation.AddMonths(base, *months)}, nil
	}
	endDate := depreciation.Date(*end)
	n := depreciation.MonthsBetween(base, endDate)
	if n <= 0 {
		return nil, invalidf("revised end date must be after the base date %s", base.Format(time.DateOnly))
	}
	return &Revision{Months: n, EndDate: endDate}, nil
}

// RevisionFromStart resolves a revision counted from the item's own
// depreciation start, as used by mass updates.
func RevisionFromStart(item Item, months *int, end *time.Time) (*Revision, error) {
	if months == nil && end == nil {
		return nil, nil
	}
	if months != nil && end != nil {
		return nil, invalidf("provide either a target life or an end date")
	}
	start := depreciation.Date(item.StartDate)
	if months != nil {
		if *months <= 0 {
			return nil, invalidf("target life must be positive")
		}
		return &Revision{Months: *months, EndDate: depreciation.AddMonths(start, *months)}, nil
	}
	endDate := depreciation.Date(*end)
	n := depreciation.MonthsBetween(start, endDate)
	if n <= 0 {
		return nil, invalidf("end date precedes depreciation start %s", start.Format(time.DateOnly))
	}
	return &Revision{Months: n, EndDate: endDate}, nil
}

// Apply runs the revision rules against item and returns the updated item.
// The first violated rule is returned as the error.
func (p Policy) Apply(item Item, period Period, d Decision, today time.Time) (Outcome, error) {
	if period.Closed() {
		return Outcome{}, ErrPeriodClosed
	}
	if err := validateDecision(d); err != nil {
		return Outcome{}, err
	}
	today = depreciation.Date(today)
	near := p.nearTerm()
	originalTotal := item.OriginalTotal()
	revisedTotal := 0
	if d.Revision != nil {
		revisedTotal = depreciation.MonthsBetween(item.StartDate, d.Revision.EndDate)
		if revisedTotal <= 0 {
			return Outcome{}, invalidf("revised end date must be after depreciation start")
		}
	}

	if d.Increment != nil {
		if err := checkIncrement(*d.Increment, d.Revision != nil, originalTotal, revisedTotal); err != nil {
			return Outcome{}, err
		}
	}

	justification := strings.TrimSpace(d.Justification)
	if d.Revision == nil {
		if justification == "" {
			justification = ConfirmedJustification
		}
	} else if justification == "" {
		// A reduction always needs a reason, which also covers reducing an
		// original life that was already near its end.
		reducing := revisedTotal < originalTotal
		revisedNear := depreciation.MonthsBetween(today, d.Revision.EndDate) <= near
		if reducing || revisedNear {
			return Outcome{}, ErrJustification
		}
	}

	out := item
	if d.Revision != nil {
		rev := *d.Revision
		out.Revision = &rev
	} else {
		out.Revision = nil
	}
	out.Condition = d.Condition
	out.Justification = justification
	out.Increment = d.Increment
	out.IncrementReason = strings.TrimSpace(d.IncrementReason)
	out.Changed = d.Revision != nil && (originalTotal == 0 || revisedTotal != originalTotal)
	if d.AuthorID != nil {
		author := *d.AuthorID
		out.AuthorID = &author
	}
	if out.Changed {
		out.Status = ItemStatusReviewed
	}

	autoApproved := false
	if d.Increment != nil && *d.Increment == IncrementKeep &&
		depreciation.MonthsBetween(today, out.EffectiveEnd()) > near {
		out.Status = ItemStatusApproved
		autoApproved = true
	}

	return Outcome{
		Item:          out,
		PreviousTotal: originalTotal,
		RevisedTotal:  revisedTotal,
		AutoApproved:  autoApproved,
	}, nil
}

func checkIncrement(inc Increment, hasRevision bool, original, revised int) error {
	switch inc {
	case IncrementKeep:
		if hasRevision && revised != original {
			return transitionf("KEEP requires the revised life (%d months) to equal the original (%d months)", revised, original)
		}
	case IncrementDecrease:
		if !hasRevision {
			return transitionf("DECREASE requires a revised life")
		}
		if revised >= original {
			return transitionf("DECREASE requires a revised life shorter than %d months", original)
		}
	case IncrementIncrease:
		if !hasRevision {
			return transitionf("INCREASE requires a revised life")
		}
		if revised <= original {
			return transitionf("INCREASE requires a revised life longer than %d months", original)
		}
	}
	return nil
}

func validateDecision(d Decision) error {
	if d.Increment != nil && !validIncrement(*d.Increment) {
		return invalidf("unknown increment %q", *d.Increment)
	}
	if d.Condition != nil && !validCondition(*d.Condition) {
		return invalidf("unknown physical condition %q", *d.Condition)
	}
	return nil
}

func validIncrement(v Increment) bool {
	switch v {
	case IncrementIncrease, IncrementDecrease, IncrementKeep:
		return true
	}
	return false
}

func validCondition(v Condition) bool {
	switch v {
	case ConditionGood, ConditionRegular, ConditionPoor:
		return true
	}
	return false
}
