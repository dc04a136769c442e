package review

import (
	"context"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// ItemResult reports the fate of one member of a batch.
type ItemResult struct {
	ItemID     int64   `json:"item_id"`
	Status     string  `json:"status"`
	OldMonths  int     `json:"old_months,omitempty"`
	NewMonths  int     `json:"new_months,omitempty"`
	OldEndDate *string `json:"old_end_date,omitempty"`
	NewEndDate *string `json:"new_end_date,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Batch result statuses.
const (
	ResultUpdated  = "updated"
	ResultApproved = "approved"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// BatchResult summarises a mass operation.
type BatchResult struct {
	BatchID string       `json:"batch_id"`
	Total   int          `json:"total"`
	Updated int          `json:"updated"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Items   []ItemResult `json:"items"`
}

func (b *BatchResult) add(r ItemResult) {
	b.Items = append(b.Items, r)
	switch r.Status {
	case ResultUpdated, ResultApproved:
		b.Updated++
	case ResultSkipped:
		b.Skipped++
	default:
		b.Failed++
	}
}

// Approve approves the item and every other member of its asset group.
func (s *Service) Approve(ctx context.Context, p shared.Principal, itemID int64, note string) (Item, error) {
	var item Item
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriodOfItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		item, _, err = s.approveGroup(ctx, tx, p, period, itemID, note)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.invalidate(ctx)
	return item, nil
}

// Revert clears the revised life of the item's asset group and marks it
// reverted. A reason is mandatory.
func (s *Service) Revert(ctx context.Context, p shared.Principal, itemID int64, reason string) (Item, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Item{}, invalidf("a reason is required to revert")
	}
	var target Item
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriodOfItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		group, err := s.loadGroup(ctx, tx, period.ID, itemID)
		if err != nil {
			return err
		}
		now := s.now()
		var rec audit.Record
		for _, member := range group.Items {
			prior := member.RevisedTotal()
			member.Revision = nil
			member.Changed = false
			member.Status = ItemStatusReverted
			member.UpdatedAt = now
			if err := tx.SaveItem(ctx, member); err != nil {
				return err
			}
			rec.History = append(rec.History, audit.HistoryEntry{
				PeriodID:       member.PeriodID,
				ItemID:         member.ID,
				AssetNumber:    member.AssetNumber,
				Action:         audit.ActionReverted,
				ReviewerID:     member.AuthorID,
				SupervisorID:   ptr(p.UserID),
				PreviousMonths: prior,
				RevisedMonths:  member.OriginalTotal(),
				Status:         string(member.Status),
				Reason:         reason,
				At:             now,
			})
			if member.ID == itemID {
				target = member
			}
		}
		rec.Entries = append(rec.Entries, itemAudit(period, p.UserID, "item.revert", itemID, map[string]any{
			"asset":  group.AssetNumber,
			"items":  len(group.Items),
			"reason": reason,
		}))
		s.record(ctx, tx, rec)
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.invalidate(ctx)
	return target, nil
}

// MassApprove approves each listed item of a period, skipping items already
// approved. Per-item failures are reported without aborting the batch.
func (s *Service) MassApprove(ctx context.Context, p shared.Principal, periodID int64, itemIDs []int64) (BatchResult, error) {
	if len(itemIDs) == 0 {
		return BatchResult{}, invalidf("no items selected")
	}
	release, err := s.acquireBatch(ctx, periodID)
	if err != nil {
		return BatchResult{}, err
	}
	defer release()

	batchID := newBatchID()
	var result BatchResult
	err = s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = BatchResult{BatchID: batchID, Total: len(itemIDs)}
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
		for _, id := range itemIDs {
			var approved bool
			err := tx.Savepoint(ctx, func(ctx context.Context, sp TxRepository) error {
				var err error
				_, approved, err = s.approveGroup(ctx, sp, p, period, id, "")
				return err
			})
			switch {
			case db.Retryable(err):
				return err
			case err != nil:
				result.add(ItemResult{ItemID: id, Status: ResultFailed, Error: err.Error()})
			case !approved:
				result.add(ItemResult{ItemID: id, Status: ResultSkipped, Error: "already approved"})
			default:
				result.add(ItemResult{ItemID: id, Status: ResultApproved})
			}
		}
		s.record(ctx, tx, periodAudit(period, p.UserID, "items.mass_approve", map[string]any{
			"batch":    result.BatchID,
			"total":    result.Total,
			"approved": result.Updated,
			"skipped":  result.Skipped,
			"failed":   result.Failed,
		}))
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	for _, item := range result.Items {
		s.metrics.ObserveMassItem("approve", item.Status)
	}
	s.invalidate(ctx)
	return result, nil
}

// approveGroup approves every unapproved member of itemID's group. It
// reports false when the target item was already approved.
func (s *Service) approveGroup(ctx context.Context, tx TxRepository, p shared.Principal, period Period, itemID int64, note string) (Item, bool, error) {
	group, err := s.loadGroup(ctx, tx, period.ID, itemID)
	if err != nil {
		return Item{}, false, err
	}
	now := s.now()
	note = strings.TrimSpace(note)
	var (
		target   Item
		approved bool
		rec      audit.Record
	)
	for _, member := range group.Items {
		if member.Status == ItemStatusApproved {
			if member.ID == itemID {
				target = member
			}
			continue
		}
		member.Status = ItemStatusApproved
		member.UpdatedAt = now
		if err := tx.SaveItem(ctx, member); err != nil {
			return Item{}, false, err
		}
		revised := member.RevisedTotal()
		if revised == 0 {
			revised = member.OriginalTotal()
		}
		reason := note
		if reason == "" {
			reason = member.Justification
		}
		rec.History = append(rec.History, audit.HistoryEntry{
			PeriodID:       member.PeriodID,
			ItemID:         member.ID,
			AssetNumber:    member.AssetNumber,
			Action:         audit.ActionApproved,
			ReviewerID:     member.AuthorID,
			SupervisorID:   ptr(p.UserID),
			PreviousMonths: member.OriginalTotal(),
			RevisedMonths:  revised,
			Status:         string(member.Status),
			Reason:         reason,
			At:             now,
		})
		if member.ID == itemID {
			target = member
			approved = true
		}
	}
	if !rec.Empty() {
		rec.Entries = append(rec.Entries, itemAudit(period, p.UserID, "item.approve", itemID, map[string]any{
			"asset": group.AssetNumber,
			"items": len(rec.History),
		}))
		s.record(ctx, tx, rec)
	}
	return target, approved, nil
}

func (s *Service) acquireBatch(ctx context.Context, periodID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, shared.MassLockKey(periodID))
}

func itemAudit(period Period, actorID int64, action string, itemID int64, meta map[string]any) audit.Entry {
	meta["period"] = period.Code
	return audit.Entry{
		CompanyID: period.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "review_item",
		EntityID:  strconv.FormatInt(itemID, 10),
		Meta:      meta,
	}
}
