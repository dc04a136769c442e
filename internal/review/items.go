package review

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/depreciation"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// ImportRow is one normalized ledger line produced by the external importer.
type ImportRow struct {
	AssetNumber             string
	SubNumber               int
	Description             string
	StartDate               time.Time
	OriginalEndDate         *time.Time
	OriginalMonths          int
	AcquisitionValue        decimal.Decimal
	AccumulatedDepreciation decimal.Decimal
	BookValue               decimal.Decimal
	CostCenter              string
	AccountClass            string
	ClassDescription        string
	UnitID                  *int64
}

// ReviseInput is a reviewer's decision on a single item. At most one of
// Months and EndDate is set; both are relative to the period base date.
type ReviseInput struct {
	ItemID          int64
	Months          *int
	EndDate         *time.Time
	Condition       *Condition
	Justification   string
	Increment       *Increment
	IncrementReason string
	ReviewerID      *int64
}

// ReviseResult reports the stored item and whether it was auto-approved.
type ReviseResult struct {
	Item          Item
	PreviousTotal int
	RevisedTotal  int
	AutoApproved  bool
}

// ListItems returns the items of a period.
func (s *Service) ListItems(ctx context.Context, p shared.Principal, f ItemFilter) ([]Item, error) {
	if _, err := s.GetPeriod(ctx, p, f.PeriodID); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, f)
}

// GetItem returns a single item after checking company scope.
func (s *Service) GetItem(ctx context.Context, p shared.Principal, id int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !p.CanAccess(item.CompanyID) {
		return Item{}, ErrOutsideCompany
	}
	return item, nil
}

// ImportItems bulk-loads ledger rows into an open period.
func (s *Service) ImportItems(ctx context.Context, p shared.Principal, periodID int64, rows []ImportRow) (int64, error) {
	if len(rows) == 0 {
		return 0, invalidf("no rows to import")
	}
	for i, row := range rows {
		if err := row.validate(); err != nil {
			return 0, invalidf("row %d: %v", i+1, err)
		}
	}
	var inserted int64
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriod(ctx, periodID, false)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		items := make([]Item, 0, len(rows))
		for _, row := range rows {
			items = append(items, row.toItem(period))
		}
		inserted, err = tx.CopyItems(ctx, items)
		if err != nil {
			return err
		}
		s.record(ctx, tx, periodAudit(period, p.UserID, "items.import", map[string]any{"rows": inserted}))
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return inserted, nil
}

func (r ImportRow) validate() error {
	switch {
	case strings.TrimSpace(r.AssetNumber) == "":
		return errors.New("asset number is required")
	case r.SubNumber < 0:
		return errors.New("sub-number must not be negative")
	case r.StartDate.IsZero():
		return errors.New("depreciation start date is required")
	case r.AcquisitionValue.IsNegative():
		return errors.New("acquisition value must not be negative")
	case r.OriginalMonths < 0:
		return errors.New("original useful life must not be negative")
	}
	return nil
}

func (r ImportRow) toItem(period Period) Item {
	return Item{
		PeriodID:                period.ID,
		CompanyID:               period.CompanyID,
		AssetNumber:             strings.TrimSpace(r.AssetNumber),
		SubNumber:               r.SubNumber,
		Description:             strings.TrimSpace(r.Description),
		StartDate:               depreciation.Date(r.StartDate),
		OriginalEndDate:         dateOrNil(r.OriginalEndDate),
		AcquisitionValue:        r.AcquisitionValue.Round(2),
		AccumulatedDepreciation: r.AccumulatedDepreciation.Round(2),
		BookValue:               r.BookValue.Round(2),
		CostCenter:              strings.TrimSpace(r.CostCenter),
		AccountClass:            strings.TrimSpace(r.AccountClass),
		ClassDescription:        strings.TrimSpace(r.ClassDescription),
		UnitID:                  r.UnitID,
		OriginalMonths:          r.OriginalMonths,
		Status:                  ItemStatusPending,
	}
}

// ReviseItem applies a reviewer decision to one item.
func (s *Service) ReviseItem(ctx context.Context, p shared.Principal, in ReviseInput) (ReviseResult, error) {
	var result ReviseResult
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriodOfItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		item, err := tx.LoadItemForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if item.Status == ItemStatusApproved {
			return ErrItemLocked
		}
		if err := tx.LockAssetGroup(ctx, period.ID, item.AssetNumber); err != nil {
			return err
		}
		revision, err := RevisionFromBase(period, in.Months, in.EndDate)
		if err != nil {
			return err
		}
		author := in.ReviewerID
		if author == nil {
			author = ptr(p.UserID)
		}
		outcome, err := s.policy.Apply(item, period, Decision{
			Revision:        revision,
			Condition:       in.Condition,
			Justification:   in.Justification,
			Increment:       in.Increment,
			IncrementReason: in.IncrementReason,
			AuthorID:        author,
		}, s.today())
		if err != nil {
			return err
		}
		outcome.Item.UpdatedAt = s.now()
		if err := tx.SaveItem(ctx, outcome.Item); err != nil {
			return err
		}
		if outcome.AutoApproved {
			if err := s.autoApproveGroup(ctx, tx, period, outcome); err != nil {
				return err
			}
		}
		result = ReviseResult(outcome)
		return nil
	})
	if err != nil {
		s.metrics.ObserveRevision("rejected")
		return ReviseResult{}, err
	}
	switch {
	case result.AutoApproved:
		s.metrics.ObserveRevision("auto_approved")
	case result.Item.Changed:
		s.metrics.ObserveRevision("changed")
	default:
		s.metrics.ObserveRevision("confirmed")
	}
	s.invalidate(ctx)
	return result, nil
}

// autoApproveGroup extends an auto-approval to the rest of the item's asset
// group and records one history row per member approved.
func (s *Service) autoApproveGroup(ctx context.Context, tx TxRepository, period Period, o Outcome) error {
	members, err := tx.GroupItems(ctx, period.ID, o.Item.AssetNumber)
	if err != nil {
		return err
	}
	now := s.now()
	rec := autoApprovalRecord(o, period, now)
	for _, member := range members {
		if member.ID == o.Item.ID || member.Status == ItemStatusApproved {
			continue
		}
		member.Status = ItemStatusApproved
		member.UpdatedAt = now
		if err := tx.SaveItem(ctx, member); err != nil {
			return err
		}
		revised := member.RevisedTotal()
		if revised == 0 {
			revised = member.OriginalTotal()
		}
		reason := member.Justification
		if reason == "" {
			reason = o.Item.Justification
		}
		rec.History = append(rec.History, audit.HistoryEntry{
			PeriodID:       member.PeriodID,
			ItemID:         member.ID,
			AssetNumber:    member.AssetNumber,
			Action:         audit.ActionAutoApproved,
			ReviewerID:     o.Item.AuthorID,
			PreviousMonths: member.OriginalTotal(),
			RevisedMonths:  revised,
			Status:         string(member.Status),
			Reason:         reason,
			At:             now,
		})
	}
	rec.Entries[0].Meta["items"] = len(rec.History)
	s.record(ctx, tx, rec)
	return nil
}

func autoApprovalRecord(o Outcome, period Period, at time.Time) audit.Record {
	item := o.Item
	revised := o.RevisedTotal
	if revised == 0 {
		revised = o.PreviousTotal
	}
	return audit.Record{
		History: []audit.HistoryEntry{{
			PeriodID:       item.PeriodID,
			ItemID:         item.ID,
			AssetNumber:    item.AssetNumber,
			Action:         audit.ActionAutoApproved,
			ReviewerID:     item.AuthorID,
			PreviousMonths: o.PreviousTotal,
			RevisedMonths:  revised,
			Status:         string(item.Status),
			Reason:         item.Justification,
			At:             at,
		}},
		Entries: []audit.Entry{{
			CompanyID: period.CompanyID,
			ActorID:   derefOr(item.AuthorID, 0),
			Action:    "item.auto_approve",
			Entity:    "review_item",
			EntityID:  strconv.FormatInt(item.ID, 10),
			Meta:      map[string]any{"period": period.Code, "asset": item.AssetNumber},
			At:        at,
		}},
	}
}

func derefOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}
