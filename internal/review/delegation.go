package review

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// DelegateInput assigns a reviewer to an item and, through it, to its group.
type DelegateInput struct {
	PeriodID   int64
	ItemID     int64
	ReviewerID int64
}

// ListDelegations returns every delegation of a period.
func (s *Service) ListDelegations(ctx context.Context, p shared.Principal, periodID int64) ([]Delegation, error) {
	if _, err := s.GetPeriod(ctx, p, periodID); err != nil {
		return nil, err
	}
	return s.repo.ListDelegations(ctx, periodID)
}

// Delegate assigns the reviewer to every member of the item's asset group
// that has no active delegation and returns the target item's delegation.
func (s *Service) Delegate(ctx context.Context, p shared.Principal, in DelegateInput) (Delegation, error) {
	if in.PeriodID == 0 || in.ItemID == 0 || in.ReviewerID == 0 {
		return Delegation{}, invalidf("period, item and reviewer are required")
	}
	var target Delegation
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriod(ctx, in.PeriodID, false)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		group, err := s.loadGroup(ctx, tx, period.ID, in.ItemID)
		if err != nil {
			return err
		}
		planned, err := group.Delegate(in.ItemID, in.ReviewerID, p.UserID, s.now())
		if err != nil {
			return err
		}
		created, err := tx.InsertDelegations(ctx, planned)
		if err != nil {
			return err
		}
		for _, d := range created {
			if d.ItemID == in.ItemID {
				target = d
			}
		}
		s.record(ctx, tx, delegationAudit(period, p.UserID, "delegation.create", group.AssetNumber, in.ReviewerID, len(created)))
		return nil
	})
	if err != nil {
		return Delegation{}, err
	}
	return target, nil
}

// RemoveDelegation removes every active delegation of the delegation's asset group.
func (s *Service) RemoveDelegation(ctx context.Context, p shared.Principal, id int64) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.LoadDelegation(ctx, id)
		if err != nil {
			return err
		}
		period, err := tx.LockPeriod(ctx, d.PeriodID, false)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		if err := tx.LockAssetGroup(ctx, period.ID, d.AssetNumber); err != nil {
			return err
		}
		removed, err = tx.RemoveGroupDelegations(ctx, period.ID, d.AssetNumber, p.UserID, s.now())
		if err != nil {
			return err
		}
		s.record(ctx, tx, delegationAudit(period, p.UserID, "delegation.remove", d.AssetNumber, d.ReviewerID, int(removed)))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// loadGroup locks the asset group of itemID and loads its members and
// active delegations.
func (s *Service) loadGroup(ctx context.Context, tx TxRepository, periodID, itemID int64) (AssetGroup, error) {
	item, err := tx.LoadItemForUpdate(ctx, itemID)
	if err != nil {
		return AssetGroup{}, err
	}
	if item.PeriodID != periodID {
		return AssetGroup{}, ErrItemNotFound
	}
	if err := tx.LockAssetGroup(ctx, periodID, item.AssetNumber); err != nil {
		return AssetGroup{}, err
	}
	items, err := tx.GroupItems(ctx, periodID, item.AssetNumber)
	if err != nil {
		return AssetGroup{}, err
	}
	active, err := tx.GroupDelegations(ctx, periodID, item.AssetNumber)
	if err != nil {
		return AssetGroup{}, err
	}
	return AssetGroup{PeriodID: periodID, AssetNumber: item.AssetNumber, Items: items, Active: active}, nil
}

func delegationAudit(period Period, actorID int64, action, asset string, reviewerID int64, count int) audit.Record {
	return audit.Record{Entries: []audit.Entry{{
		CompanyID: period.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "asset_group",
		EntityID:  strconv.FormatInt(period.ID, 10) + ":" + asset,
		Meta: map[string]any{
			"period":   period.Code,
			"reviewer": reviewerID,
			"items":    count,
		},
	}}}
}
