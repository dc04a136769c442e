package reviewhttp

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rvu/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rvu/internal/review"
)

type createPeriodRequest struct {
	CompanyID       int64  `json:"company_id" validate:"required,gt=0"`
	UnitID          *int64 `json:"unit_id"`
	ResponsibleID   int64  `json:"responsible_id" validate:"required,gt=0"`
	OpenedOn        string `json:"opened_on" validate:"required,datetime=2006-01-02"`
	ExpectedCloseOn string `json:"expected_close_on" validate:"required,datetime=2006-01-02"`
	BaseDate        string `json:"base_date" validate:"omitempty,datetime=2006-01-02"`
	Description     string `json:"description" validate:"max=500"`
	Notes           string `json:"notes" validate:"max=2000"`
}

func (req createPeriodRequest) input() (review.CreatePeriodInput, error) {
	opened, err := parseDate(req.OpenedOn)
	if err != nil {
		return review.CreatePeriodInput{}, err
	}
	expected, err := parseDate(req.ExpectedCloseOn)
	if err != nil {
		return review.CreatePeriodInput{}, err
	}
	base, err := parseOptionalDate(req.BaseDate)
	if err != nil {
		return review.CreatePeriodInput{}, err
	}
	return review.CreatePeriodInput{
		CompanyID:       req.CompanyID,
		UnitID:          req.UnitID,
		ResponsibleID:   req.ResponsibleID,
		OpenedOn:        opened,
		ExpectedCloseOn: expected,
		BaseDate:        base,
		Description:     req.Description,
		Notes:           req.Notes,
	}, nil
}

type updatePeriodRequest struct {
	UnitID          *int64  `json:"unit_id"`
	ResponsibleID   *int64  `json:"responsible_id" validate:"omitempty,gt=0"`
	ExpectedCloseOn string  `json:"expected_close_on" validate:"omitempty,datetime=2006-01-02"`
	BaseDate        string  `json:"base_date" validate:"omitempty,datetime=2006-01-02"`
	Description     *string `json:"description" validate:"omitempty,max=500"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
}

func (req updatePeriodRequest) input(id int64) (review.UpdatePeriodInput, error) {
	expected, err := parseOptionalDate(req.ExpectedCloseOn)
	if err != nil {
		return review.UpdatePeriodInput{}, err
	}
	base, err := parseOptionalDate(req.BaseDate)
	if err != nil {
		return review.UpdatePeriodInput{}, err
	}
	return review.UpdatePeriodInput{
		ID:              id,
		UnitID:          req.UnitID,
		ResponsibleID:   req.ResponsibleID,
		ExpectedCloseOn: expected,
		BaseDate:        base,
		Description:     req.Description,
		Notes:           req.Notes,
	}, nil
}

type importRowRequest struct {
	AssetNumber             string          `json:"asset_number" validate:"required"`
	SubNumber               int             `json:"sub_number" validate:"gte=0"`
	Description             string          `json:"description"`
	StartDate               string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	OriginalEndDate         string          `json:"original_end_date" validate:"omitempty,datetime=2006-01-02"`
	OriginalMonths          int             `json:"original_months" validate:"gte=0"`
	AcquisitionValue        decimal.Decimal `json:"acquisition_value"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulated_depreciation"`
	BookValue               decimal.Decimal `json:"book_value"`
	CostCenter              string          `json:"cost_center"`
	AccountClass            string          `json:"account_class"`
	ClassDescription        string          `json:"class_description"`
	UnitID                  *int64          `json:"unit_id"`
}

type importRequest struct {
	Rows []importRowRequest `json:"rows" validate:"required,min=1,dive"`
}

func (req importRequest) rows() ([]review.ImportRow, error) {
	out := make([]review.ImportRow, 0, len(req.Rows))
	for i, row := range req.Rows {
		start, err := parseDate(row.StartDate)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		end, err := parseOptionalDate(row.OriginalEndDate)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, review.ImportRow{
			AssetNumber:             row.AssetNumber,
			SubNumber:               row.SubNumber,
			Description:             row.Description,
			StartDate:               start,
			OriginalEndDate:         end,
			OriginalMonths:          row.OriginalMonths,
			AcquisitionValue:        row.AcquisitionValue,
			AccumulatedDepreciation: row.AccumulatedDepreciation,
			BookValue:               row.BookValue,
			CostCenter:              row.CostCenter,
			AccountClass:            row.AccountClass,
			ClassDescription:        row.ClassDescription,
			UnitID:                  row.UnitID,
		})
	}
	return out, nil
}

type reviseRequest struct {
	RevisedMonths   *int   `json:"revised_months" validate:"omitempty,gt=0"`
	RevisedEndDate  string `json:"revised_end_date" validate:"omitempty,datetime=2006-01-02"`
	Condition       string `json:"condition" validate:"omitempty,oneof=GOOD REGULAR POOR"`
	Justification   string `json:"justification" validate:"max=2000"`
	Increment       string `json:"increment" validate:"omitempty,oneof=INCREASE DECREASE KEEP"`
	IncrementReason string `json:"increment_reason" validate:"max=2000"`
	ReviewerID      *int64 `json:"reviewer_id" validate:"omitempty,gt=0"`
}

func (req reviseRequest) input(itemID int64) (review.ReviseInput, error) {
	end, err := parseOptionalDate(req.RevisedEndDate)
	if err != nil {
		return review.ReviseInput{}, err
	}
	return review.ReviseInput{
		ItemID:          itemID,
		Months:          req.RevisedMonths,
		EndDate:         end,
		Condition:       conditionOrNil(req.Condition),
		Justification:   req.Justification,
		Increment:       incrementOrNil(req.Increment),
		IncrementReason: req.IncrementReason,
		ReviewerID:      req.ReviewerID,
	}, nil
}

type massReviseRequest struct {
	ItemIDs         []int64 `json:"item_ids" validate:"required,min=1,dive,gt=0"`
	Years           int     `json:"years" validate:"gte=0"`
	Months          int     `json:"months" validate:"gte=0,lt=12"`
	EndDate         string  `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Condition       string  `json:"condition" validate:"omitempty,oneof=GOOD REGULAR POOR"`
	Justification   string  `json:"justification" validate:"max=2000"`
	Increment       string  `json:"increment" validate:"omitempty,oneof=INCREASE DECREASE KEEP"`
	IncrementReason string  `json:"increment_reason" validate:"max=2000"`
	Reason          string  `json:"reason" validate:"required,max=2000"`
	ReviewerID      *int64  `json:"reviewer_id" validate:"omitempty,gt=0"`
}

func (req massReviseRequest) input(periodID int64) (review.MassReviseInput, error) {
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return review.MassReviseInput{}, err
	}
	return review.MassReviseInput{
		PeriodID:        periodID,
		ItemIDs:         req.ItemIDs,
		Years:           req.Years,
		Months:          req.Months,
		EndDate:         end,
		Condition:       conditionOrNil(req.Condition),
		Justification:   req.Justification,
		Increment:       incrementOrNil(req.Increment),
		IncrementReason: req.IncrementReason,
		Reason:          req.Reason,
		ReviewerID:      req.ReviewerID,
	}, nil
}

type massApproveRequest struct {
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1,dive,gt=0"`
}

type delegateRequest struct {
	ItemID     int64 `json:"item_id" validate:"required,gt=0"`
	ReviewerID int64 `json:"reviewer_id" validate:"required,gt=0"`
}

type noteRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type revertRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type commentRequest struct {
	Body        string `json:"body" validate:"required,max=4000"`
	RecipientID *int64 `json:"recipient_id" validate:"omitempty,gt=0"`
}

type responseRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type periodView struct {
	ID              int64   `json:"id"`
	Code            string  `json:"code"`
	CompanyID       int64   `json:"company_id"`
	UnitID          *int64  `json:"unit_id,omitempty"`
	ResponsibleID   int64   `json:"responsible_id"`
	Status          string  `json:"status"`
	OpenedOn        string  `json:"opened_on"`
	ExpectedCloseOn string  `json:"expected_close_on"`
	ClosedOn        *string `json:"closed_on,omitempty"`
	BaseDate        *string `json:"base_date,omitempty"`
	Description     string  `json:"description,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

func newPeriodView(p review.Period) periodView {
	return periodView{
		ID:              p.ID,
		Code:            p.Code,
		CompanyID:       p.CompanyID,
		UnitID:          p.UnitID,
		ResponsibleID:   p.ResponsibleID,
		Status:          string(p.Status),
		OpenedOn:        p.OpenedOn.Format(time.DateOnly),
		ExpectedCloseOn: p.ExpectedCloseOn.Format(time.DateOnly),
		ClosedOn:        formatOptional(p.ClosedOn),
		BaseDate:        formatOptional(p.BaseDate),
		Description:     p.Description,
		Notes:           p.Notes,
	}
}

type itemView struct {
	ID                      int64           `json:"id"`
	PeriodID                int64           `json:"period_id"`
	AssetNumber             string          `json:"asset_number"`
	SubNumber               int             `json:"sub_number"`
	Description             string          `json:"description,omitempty"`
	StartDate               string          `json:"start_date"`
	OriginalEndDate         string          `json:"original_end_date"`
	OriginalMonths          int             `json:"original_months"`
	RevisedMonths           *int            `json:"revised_months,omitempty"`
	RevisedEndDate          *string         `json:"revised_end_date,omitempty"`
	AcquisitionValue        decimal.Decimal `json:"acquisition_value"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulated_depreciation"`
	BookValue               decimal.Decimal `json:"book_value"`
	CostCenter              string          `json:"cost_center,omitempty"`
	AccountClass            string          `json:"account_class,omitempty"`
	Condition               *string         `json:"condition,omitempty"`
	Justification           string          `json:"justification,omitempty"`
	Increment               *string         `json:"increment,omitempty"`
	IncrementReason         string          `json:"increment_reason,omitempty"`
	Changed                 bool            `json:"changed"`
	Status                  string          `json:"status"`
	AuthorID                *int64          `json:"author_id,omitempty"`
}

func newItemView(it review.Item) itemView {
	v := itemView{
		ID:                      it.ID,
		PeriodID:                it.PeriodID,
		AssetNumber:             it.AssetNumber,
		SubNumber:               it.SubNumber,
		Description:             it.Description,
		StartDate:               it.StartDate.Format(time.DateOnly),
		OriginalEndDate:         it.OriginalEnd().Format(time.DateOnly),
		OriginalMonths:          it.OriginalTotal(),
		AcquisitionValue:        it.AcquisitionValue,
		AccumulatedDepreciation: it.AccumulatedDepreciation,
		BookValue:               it.BookValue,
		CostCenter:              it.CostCenter,
		AccountClass:            it.AccountClass,
		Justification:           it.Justification,
		IncrementReason:         it.IncrementReason,
		Changed:                 it.Changed,
		Status:                  string(it.Status),
		AuthorID:                it.AuthorID,
	}
	if it.Revision != nil {
		months := it.Revision.Months
		v.RevisedMonths = &months
		v.RevisedEndDate = formatOptional(&it.Revision.EndDate)
	}
	if it.Condition != nil {
		c := string(*it.Condition)
		v.Condition = &c
	}
	if it.Increment != nil {
		inc := string(*it.Increment)
		v.Increment = &inc
	}
	return v
}

type reviseResponse struct {
	Item          itemView `json:"item"`
	PreviousTotal int      `json:"previous_total_months"`
	RevisedTotal  int      `json:"revised_total_months"`
	AutoApproved  bool     `json:"auto_approved"`
}

type delegationView struct {
	ID          int64     `json:"id"`
	PeriodID    int64     `json:"period_id"`
	ItemID      int64     `json:"item_id"`
	AssetNumber string    `json:"asset_number"`
	ReviewerID  int64     `json:"reviewer_id"`
	AssignedBy  int64     `json:"assigned_by"`
	AssignedAt  time.Time `json:"assigned_at"`
	Status      string    `json:"status"`
}

func newDelegationView(d review.Delegation) delegationView {
	return delegationView{
		ID:          d.ID,
		PeriodID:    d.PeriodID,
		ItemID:      d.ItemID,
		AssetNumber: d.AssetNumber,
		ReviewerID:  d.ReviewerID,
		AssignedBy:  d.AssignedBy,
		AssignedAt:  d.AssignedAt,
		Status:      string(d.Status),
	}
}

type commentView struct {
	ID          int64      `json:"id"`
	ItemID      int64      `json:"item_id"`
	AuthorID    int64      `json:"author_id"`
	RecipientID *int64     `json:"recipient_id,omitempty"`
	Kind        string     `json:"kind"`
	Body        string     `json:"body"`
	Response    string     `json:"response,omitempty"`
	RespondedBy *int64     `json:"responded_by,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newCommentView(c review.Comment) commentView {
	return commentView{
		ID:          c.ID,
		ItemID:      c.ItemID,
		AuthorID:    c.AuthorID,
		RecipientID: c.RecipientID,
		Kind:        string(c.Kind),
		Body:        c.Body,
		Response:    c.Response,
		RespondedBy: c.RespondedBy,
		RespondedAt: c.RespondedAt,
		CreatedAt:   c.CreatedAt,
	}
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", httpx.ErrMalformedBody, v)
	}
	return t, nil
}

func parseOptionalDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func conditionOrNil(v string) *review.Condition {
	if v == "" {
		return nil
	}
	c := review.Condition(v)
	return &c
}

func incrementOrNil(v string) *review.Increment {
	if v == "" {
		return nil
	}
	inc := review.Increment(v)
	return &inc
}
