package review

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rvu/internal/depreciation"
)

// PeriodStatus enumerates review period lifecycle stages.
type PeriodStatus string

const (
	PeriodStatusOpen       PeriodStatus = "OPEN"
	PeriodStatusInProgress PeriodStatus = "IN_PROGRESS"
	PeriodStatusClosed     PeriodStatus = "CLOSED"
)

// ItemStatus tracks the review disposition of a single asset line.
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "PENDING"
	ItemStatusReviewed ItemStatus = "REVIEWED"
	ItemStatusApproved ItemStatus = "APPROVED"
	ItemStatusReverted ItemStatus = "REVERTED"
)

// Increment tags the direction of a useful-life decision.
type Increment string

const (
	IncrementIncrease Increment = "INCREASE"
	IncrementDecrease Increment = "DECREASE"
	IncrementKeep     Increment = "KEEP"
)

// Condition is the physical condition observed by the reviewer.
type Condition string

const (
	ConditionGood    Condition = "GOOD"
	ConditionRegular Condition = "REGULAR"
	ConditionPoor    Condition = "POOR"
)

// DelegationStatus marks whether a delegation is in force.
type DelegationStatus string

const (
	DelegationActive  DelegationStatus = "ACTIVE"
	DelegationRemoved DelegationStatus = "REMOVED"
)

// CommentKind distinguishes comments made while a period is open from
// follow-ups recorded after closing.
type CommentKind string

const (
	CommentNormal   CommentKind = "normal"
	CommentFollowUp CommentKind = "follow_up"
)

// Period is a useful-life review campaign for one company.
type Period struct {
	ID              int64
	Code            string
	CompanyID       int64
	UnitID          *int64
	ResponsibleID   int64
	Status          PeriodStatus
	OpenedOn        time.Time
	ExpectedCloseOn time.Time
	ClosedOn        *time.Time
	BaseDate        *time.Time
	Description     string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Closed reports whether the period is terminal.
func (p Period) Closed() bool {
	return p.Status == PeriodStatusClosed
}

// Revision is the reviewer's revised useful life. Months is the figure the
// reviewer supplied (or derived from the base date); EndDate is authoritative
// for totals.
type Revision struct {
	Months  int
	EndDate time.Time
}

// Item is one asset or incorporation line under review.
type Item struct {
	ID                      int64
	PeriodID                int64
	CompanyID               int64
	AssetNumber             string
	SubNumber               int
	Description             string
	StartDate               time.Time
	OriginalEndDate         *time.Time
	AcquisitionValue        decimal.Decimal
	AccumulatedDepreciation decimal.Decimal
	BookValue               decimal.Decimal
	CostCenter              string
	AccountClass            string
	ClassDescription        string
	UnitID                  *int64
	OriginalMonths          int
	Revision                *Revision
	Condition               *Condition
	Justification           string
	Increment               *Increment
	IncrementReason         string
	Changed                 bool
	Status                  ItemStatus
	AuthorID                *int64
	UpdatedAt               time.Time
}

// OriginalTotal is the item's original useful life in months, falling back to
// the span between start and original end when no month count was imported.
func (i Item) OriginalTotal() int {
	if i.OriginalMonths > 0 {
		return i.OriginalMonths
	}
	if i.OriginalEndDate != nil {
		return depreciation.MonthsBetween(i.StartDate, *i.OriginalEndDate)
	}
	return 0
}

// OriginalEnd is the original end of life, derived from the month count when
// no end date was imported.
func (i Item) OriginalEnd() time.Time {
	if i.OriginalEndDate != nil {
		return depreciation.Date(*i.OriginalEndDate)
	}
	return depreciation.AddMonths(i.StartDate, i.OriginalMonths)
}

// RevisedTotal is the span between start and the revised end, or zero when
// the item has no revision.
func (i Item) RevisedTotal() int {
	if i.Revision == nil {
		return 0
	}
	return depreciation.MonthsBetween(i.StartDate, i.Revision.EndDate)
}

// EffectiveEnd is the revised end when present, else the original end.
func (i Item) EffectiveEnd() time.Time {
	if i.Revision != nil {
		return i.Revision.EndDate
	}
	return i.OriginalEnd()
}

// Delegation assigns a reviewer to one item of an asset group.
type Delegation struct {
	ID          int64
	PeriodID    int64
	ItemID      int64
	AssetNumber string
	ReviewerID  int64
	AssignedBy  int64
	AssignedAt  time.Time
	Status      DelegationStatus
}

// Comment is a supervisor remark on an item with an optional reviewer reply.
type Comment struct {
	ID          int64
	PeriodID    int64
	ItemID      int64
	AuthorID    int64
	RecipientID *int64
	Kind        CommentKind
	Body        string
	Response    string
	RespondedBy *int64
	RespondedAt *time.Time
	CreatedAt   time.Time
}

// CloseCounts is the snapshot evaluated by the close gates.
type CloseCounts struct {
	Items     int
	Delegated int
	Untouched int
	Reviewed  int
}
