package review

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/depreciation"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// CreatePeriodInput describes a new review period.
type CreatePeriodInput struct {
	CompanyID       int64
	UnitID          *int64
	ResponsibleID   int64
	OpenedOn        time.Time
	ExpectedCloseOn time.Time
	BaseDate        *time.Time
	Description     string
	Notes           string
}

// Validate performs basic validation of the input.
func (in CreatePeriodInput) Validate() error {
	if in.CompanyID == 0 {
		return invalidf("company is required")
	}
	if in.ResponsibleID == 0 {
		return invalidf("responsible user is required")
	}
	if in.OpenedOn.IsZero() || in.ExpectedCloseOn.IsZero() {
		return invalidf("open and expected close dates are required")
	}
	if in.ExpectedCloseOn.Before(in.OpenedOn) {
		return invalidf("expected close date precedes open date")
	}
	return nil
}

// UpdatePeriodInput carries the editable attributes of an open period. Nil
// fields are left untouched.
type UpdatePeriodInput struct {
	ID              int64
	UnitID          *int64
	ResponsibleID   *int64
	ExpectedCloseOn *time.Time
	BaseDate        *time.Time
	Description     *string
	Notes           *string
}

// ListPeriods returns the periods of every company the principal can access.
func (s *Service) ListPeriods(ctx context.Context, p shared.Principal) ([]Period, error) {
	if len(p.CompanyIDs) == 0 {
		return []Period{}, nil
	}
	return s.repo.ListPeriods(ctx, p.CompanyIDs)
}

// GetPeriod returns a single period after checking company scope.
func (s *Service) GetPeriod(ctx context.Context, p shared.Principal, id int64) (Period, error) {
	period, err := s.repo.GetPeriod(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if err := authorize(p, period); err != nil {
		return Period{}, err
	}
	return period, nil
}

// CreatePeriod opens a new review period coded RV<year>-NN.
func (s *Service) CreatePeriod(ctx context.Context, p shared.Principal, in CreatePeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	if !p.CanAccess(in.CompanyID) {
		return Period{}, ErrOutsideCompany
	}
	var period Period
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockCompany(ctx, in.CompanyID); err != nil {
			return err
		}
		active, err := tx.ActivePeriodExists(ctx, in.CompanyID)
		if err != nil {
			return err
		}
		if active {
			return ErrActivePeriod
		}
		year := in.OpenedOn.Year()
		taken, err := tx.PeriodExistsForYear(ctx, in.CompanyID, year)
		if err != nil {
			return err
		}
		if taken {
			return ErrPeriodYearTaken
		}
		prefix := fmt.Sprintf("RV%d-", year)
		n, err := tx.CountPeriodCodes(ctx, prefix)
		if err != nil {
			return err
		}
		period, err = tx.InsertPeriod(ctx, Period{
			Code:            fmt.Sprintf("%s%02d", prefix, n+1),
			CompanyID:       in.CompanyID,
			UnitID:          in.UnitID,
			ResponsibleID:   in.ResponsibleID,
			Status:          PeriodStatusOpen,
			OpenedOn:        depreciation.Date(in.OpenedOn),
			ExpectedCloseOn: depreciation.Date(in.ExpectedCloseOn),
			BaseDate:        dateOrNil(in.BaseDate),
			Description:     strings.TrimSpace(in.Description),
			Notes:           strings.TrimSpace(in.Notes),
		})
		if err != nil {
			return err
		}
		s.record(ctx, tx, periodAudit(period, p.UserID, "period.create", nil))
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// UpdatePeriod edits a period that is not closed.
func (s *Service) UpdatePeriod(ctx context.Context, p shared.Principal, in UpdatePeriodInput) (Period, error) {
	var period Period
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.LockPeriod(ctx, in.ID, true)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		if in.UnitID != nil {
			period.UnitID = in.UnitID
		}
		if in.ResponsibleID != nil {
			if *in.ResponsibleID == 0 {
				return invalidf("responsible user is required")
			}
			period.ResponsibleID = *in.ResponsibleID
		}
		if in.ExpectedCloseOn != nil {
			if in.ExpectedCloseOn.Before(period.OpenedOn) {
				return invalidf("expected close date precedes open date")
			}
			period.ExpectedCloseOn = depreciation.Date(*in.ExpectedCloseOn)
		}
		if in.BaseDate != nil {
			period.BaseDate = dateOrNil(in.BaseDate)
		}
		if in.Description != nil {
			period.Description = strings.TrimSpace(*in.Description)
		}
		if in.Notes != nil {
			period.Notes = strings.TrimSpace(*in.Notes)
		}
		if err := tx.UpdatePeriod(ctx, period); err != nil {
			return err
		}
		s.record(ctx, tx, periodAudit(period, p.UserID, "period.update", nil))
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.invalidate(ctx)
	return period, nil
}

// StartPeriod moves an open period to in-progress.
func (s *Service) StartPeriod(ctx context.Context, p shared.Principal, id int64) (Period, error) {
	var period Period
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.LockPeriod(ctx, id, true)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return ErrPeriodNotOpen
		}
		period.Status = PeriodStatusInProgress
		if err := tx.UpdatePeriod(ctx, period); err != nil {
			return err
		}
		s.record(ctx, tx, periodAudit(period, p.UserID, "period.start", nil))
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// ClosePeriod evaluates the closing gates on one snapshot and closes the
// period when every gate passes.
func (s *Service) ClosePeriod(ctx context.Context, p shared.Principal, id int64) (Period, error) {
	period, err := s.closePeriod(ctx, p, id)
	if err != nil {
		s.metrics.ObserveClose("rejected")
		return Period{}, err
	}
	s.metrics.ObserveClose("closed")
	s.invalidate(ctx)
	s.logger.Info("review period closed", slog.Int64("period_id", period.ID), slog.String("code", period.Code))
	return period, nil
}

func (s *Service) closePeriod(ctx context.Context, p shared.Principal, id int64) (Period, error) {
	if s.gate != nil {
		done, err := s.gate.TasksComplete(ctx, id)
		if err != nil {
			return Period{}, err
		}
		if !done {
			return Period{}, preconditionf("execution tasks incomplete")
		}
	}
	var period Period
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.LockPeriod(ctx, id, true)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodAlreadyDone
		}
		counts, err := tx.CountForClose(ctx, period.ID)
		if err != nil {
			return err
		}
		if err := checkCloseGates(counts); err != nil {
			return err
		}
		today := s.today()
		period.Status = PeriodStatusClosed
		period.ClosedOn = &today
		if err := tx.UpdatePeriod(ctx, period); err != nil {
			return err
		}
		s.record(ctx, tx, periodAudit(period, p.UserID, "period.close", map[string]any{
			"items":     counts.Items,
			"delegated": counts.Delegated,
		}))
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

func checkCloseGates(c CloseCounts) error {
	if c.Delegated < c.Items {
		return preconditionf("%d of %d items have no reviewer delegated", c.Items-c.Delegated, c.Items)
	}
	if c.Untouched > 0 {
		return preconditionf("%d items are still pending review", c.Untouched)
	}
	if c.Reviewed > 0 {
		return preconditionf("%d reviewed items await approval", c.Reviewed)
	}
	return nil
}

func periodAudit(period Period, actorID int64, action string, meta map[string]any) audit.Record {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["code"] = period.Code
	meta["status"] = string(period.Status)
	return audit.Record{Entries: []audit.Entry{{
		CompanyID: period.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "review_period",
		EntityID:  strconv.FormatInt(period.ID, 10),
		Meta:      meta,
	}}}
}

func dateOrNil(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := depreciation.Date(*t)
	return &d
}
