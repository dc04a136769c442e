// Package simulation compares original and revised depreciation for review
// items and serves the per-item schedule and review summary read models.
package simulation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rvu/internal/review"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// StatusFilter selects items by review state.
type StatusFilter string

const (
	StatusAll        StatusFilter = "all"
	StatusRevised    StatusFilter = "revised"
	StatusNotRevised StatusFilter = "not_revised"
)

// Adjustment labels an analytic row.
const (
	Adjusted   = "adjusted"
	Unadjusted = "unadjusted"
)

// TotalClass labels the grand-total summary row.
const TotalClass = "TOTAL"

// UnclassifiedClass groups items without an account class.
const UnclassifiedClass = "UNCLASSIFIED"

// Notice accompanies every simulation result.
const Notice = "Simulation based on review data. No accounting data was changed."

// Filter narrows a simulation to a company and window.
type Filter struct {
	CompanyID    int64        `json:"company_id"`
	From         time.Time    `json:"from"`
	To           time.Time    `json:"to"`
	Status       StatusFilter `json:"status"`
	AccountClass string       `json:"account_class,omitempty"`
	UnitID       *int64       `json:"unit_id,omitempty"`
	CostCenter   string       `json:"cost_center,omitempty"`
}

// Validate checks the window and status.
func (f *Filter) Validate() error {
	if f.CompanyID <= 0 {
		return fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	if f.From.IsZero() || f.To.IsZero() {
		return fmt.Errorf("%w: simulation window is required", shared.ErrValidation)
	}
	if f.To.Before(f.From) {
		return fmt.Errorf("%w: window end precedes its start", shared.ErrValidation)
	}
	switch f.Status {
	case "":
		f.Status = StatusAll
	case StatusAll, StatusRevised, StatusNotRevised:
	default:
		return fmt.Errorf("%w: unknown status filter %q", shared.ErrValidation, f.Status)
	}
	f.AccountClass = strings.TrimSpace(f.AccountClass)
	f.CostCenter = strings.TrimSpace(f.CostCenter)
	return nil
}

// Asset is a review item together with the dates of its period that anchor
// the revised horizon.
type Asset struct {
	Item       review.Item
	BaseDate   *time.Time
	OpenedOn   time.Time
	ReviewerID *int64
}

// AnalyticRow compares one item's depreciation in the window.
type AnalyticRow struct {
	ItemID           int64           `json:"item_id"`
	AssetNumber      string          `json:"asset_number"`
	SubNumber        int             `json:"sub_number"`
	StartDate        string          `json:"start_date"`
	Description      string          `json:"description"`
	AccountClass     string          `json:"account_class"`
	ClassDescription string          `json:"class_description,omitempty"`
	OriginalYears    int             `json:"original_years"`
	OriginalMonths   int             `json:"original_months"`
	OriginalEnd      string          `json:"original_end"`
	OriginalCharge   decimal.Decimal `json:"original_charge"`
	RevisedYears     int             `json:"revised_years"`
	RevisedMonths    int             `json:"revised_months"`
	RevisedEnd       string          `json:"revised_end"`
	RevisedCharge    decimal.Decimal `json:"revised_charge"`
	Difference       decimal.Decimal `json:"difference"`
	DifferencePct    decimal.Decimal `json:"difference_pct"`
	Adjustment       string          `json:"adjustment"`
}

// SummaryRow aggregates analytic rows per account class.
type SummaryRow struct {
	AccountClass     string          `json:"account_class"`
	ClassDescription string          `json:"class_description,omitempty"`
	Assets           int             `json:"assets"`
	OriginalTotal    decimal.Decimal `json:"original_total"`
	RevisedTotal     decimal.Decimal `json:"revised_total"`
	Difference       decimal.Decimal `json:"difference"`
	DifferencePct    decimal.Decimal `json:"difference_pct"`
}

// Result is the outcome of a simulation.
type Result struct {
	Analytic []AnalyticRow `json:"analytic"`
	Summary  []SummaryRow  `json:"summary"`
	Notice   string        `json:"notice"`
}

// ScheduleView is the schedule of one item over its effective life.
type ScheduleView struct {
	ItemID    int64   `json:"item_id"`
	Months    int     `json:"months"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Rows      []Entry `json:"rows"`
}

// Entry is one schedule month in wire form.
type Entry struct {
	Period  string          `json:"period"`
	Opening decimal.Decimal `json:"opening"`
	Charge  decimal.Decimal `json:"charge"`
	Closing decimal.Decimal `json:"closing"`
}

// SummaryItem is the per-item review read model.
type SummaryItem struct {
	ItemID         int64   `json:"item_id"`
	AssetNumber    string  `json:"asset_number"`
	SubNumber      int     `json:"sub_number"`
	Description    string  `json:"description"`
	CurrentYears   int     `json:"current_years"`
	CurrentMonths  int     `json:"current_months"`
	CurrentEnd     string  `json:"current_end"`
	RevisedYears   *int    `json:"revised_years,omitempty"`
	RevisedMonths  *int    `json:"revised_months,omitempty"`
	RevisedEnd     *string `json:"revised_end,omitempty"`
	ReviewerID     *int64  `json:"reviewer_id,omitempty"`
	Status         string  `json:"status"`
	Changed        bool    `json:"changed"`
	Justification  string  `json:"justification,omitempty"`
	ConditionLabel string  `json:"condition,omitempty"`
}

// PeriodSummary wraps the per-item read model of one period.
type PeriodSummary struct {
	PeriodID int64         `json:"period_id"`
	Code     string        `json:"code"`
	Status   string        `json:"status"`
	Items    []SummaryItem `json:"items"`
	Counts   StatusCounts  `json:"counts"`
}

// StatusCounts tallies items by review status.
type StatusCounts struct {
	Pending  int `json:"pending"`
	Reviewed int `json:"reviewed"`
	Approved int `json:"approved"`
	Reverted int `json:"reverted"`
}
