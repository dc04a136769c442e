package review

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// MassReviseInput applies one decision to many items. The target life is
// either Years+Months or EndDate, both counted from each item's own
// depreciation start.
type MassReviseInput struct {
	PeriodID        int64
	ItemIDs         []int64
	Years           int
	Months          int
	EndDate         *time.Time
	Condition       *Condition
	Justification   string
	Increment       *Increment
	IncrementReason string
	Reason          string
	ReviewerID      *int64
}

func (in MassReviseInput) target() (*int, error) {
	if in.Years < 0 || in.Months < 0 {
		return nil, invalidf("target life must not be negative")
	}
	total := in.Years*12 + in.Months
	if total == 0 {
		return nil, nil
	}
	if in.EndDate != nil {
		return nil, invalidf("provide either a target life or an end date")
	}
	return &total, nil
}

// MassRevise applies the same decision to each listed item. Every item is
// committed on its own, so a failure never undoes items already applied.
// One audit entry summarises the batch.
func (s *Service) MassRevise(ctx context.Context, p shared.Principal, in MassReviseInput) (BatchResult, error) {
	if len(in.ItemIDs) == 0 {
		return BatchResult{}, invalidf("no items selected")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return BatchResult{}, invalidf("a reason is required for mass updates")
	}
	months, err := in.target()
	if err != nil {
		return BatchResult{}, err
	}
	period, err := s.GetPeriod(ctx, p, in.PeriodID)
	if err != nil {
		return BatchResult{}, err
	}
	if period.Closed() {
		return BatchResult{}, ErrPeriodClosed
	}
	release, err := s.acquireBatch(ctx, in.PeriodID)
	if err != nil {
		return BatchResult{}, err
	}
	defer release()

	author := in.ReviewerID
	if author == nil {
		author = ptr(p.UserID)
	}
	result := BatchResult{BatchID: newBatchID(), Total: len(in.ItemIDs)}
	for _, id := range in.ItemIDs {
		if ctx.Err() != nil {
			result.add(ItemResult{ItemID: id, Status: ResultSkipped, Error: "cancelled"})
			continue
		}
		r := s.reviseOne(ctx, p, in, id, months, author)
		result.add(r)
		s.metrics.ObserveMassItem("revise", r.Status)
	}

	summary := periodAudit(period, p.UserID, "items.mass_revise", map[string]any{
		"batch":   result.BatchID,
		"reason":  strings.TrimSpace(in.Reason),
		"total":   result.Total,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})
	if err := s.withTx(context.WithoutCancel(ctx), func(ctx context.Context, tx TxRepository) error {
		s.record(ctx, tx, summary)
		return nil
	}); err != nil {
		s.logger.Warn("mass revision audit", slog.String("batch", result.BatchID), slog.Any("error", err))
	}
	if result.Updated > 0 {
		s.invalidate(ctx)
	}
	return result, nil
}

func (s *Service) reviseOne(ctx context.Context, p shared.Principal, in MassReviseInput, itemID int64, months *int, author *int64) ItemResult {
	res := ItemResult{ItemID: itemID}
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriod(ctx, in.PeriodID, false)
		if err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		item, err := tx.LoadItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item.PeriodID != period.ID {
			return ErrItemNotFound
		}
		if item.Status == ItemStatusApproved {
			return ErrItemLocked
		}
		if err := tx.LockAssetGroup(ctx, period.ID, item.AssetNumber); err != nil {
			return err
		}
		res.OldMonths = item.OriginalTotal()
		res.OldEndDate = formatDate(item.EffectiveEnd())
		revision, err := RevisionFromStart(item, months, in.EndDate)
		if err != nil {
			return err
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
		res.NewMonths = outcome.RevisedTotal
		if res.NewMonths == 0 {
			res.NewMonths = res.OldMonths
		}
		res.NewEndDate = formatDate(outcome.Item.EffectiveEnd())
		return nil
	})
	switch {
	case err == nil:
		res.Status = ResultUpdated
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ErrItemLocked):
		res.Status = ResultSkipped
		res.Error = err.Error()
	default:
		res.Status = ResultFailed
		res.Error = err.Error()
	}
	return res
}

func newBatchID() string {
	return uuid.NewString()
}

func formatDate(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.Format(time.DateOnly)
	return &v
}
