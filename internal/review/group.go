package review

import (
	"hash/fnv"
	"strconv"
	"time"
)

// AssetGroup is every item of one asset number within a period together
// with the group's active delegations. All active delegations of a group
// name the same reviewer.
type AssetGroup struct {
	PeriodID    int64
	AssetNumber string
	Items       []Item
	Active      []Delegation
}

// Reviewer returns the reviewer currently holding the group.
func (g AssetGroup) Reviewer() (int64, bool) {
	for _, d := range g.Active {
		if d.Status == DelegationActive {
			return d.ReviewerID, true
		}
	}
	return 0, false
}

// Delegate plans the delegations needed to assign reviewerID to the group
// through targetID. The returned slice lists new delegations for every member
// lacking an active one; the target's delegation is among them.
func (g AssetGroup) Delegate(targetID, reviewerID, assignedBy int64, at time.Time) ([]Delegation, error) {
	if !g.contains(targetID) {
		return nil, ErrItemNotFound
	}
	covered := make(map[int64]bool, len(g.Active))
	for _, d := range g.Active {
		if d.Status != DelegationActive {
			continue
		}
		if d.ItemID == targetID {
			return nil, ErrAlreadyDelegated
		}
		covered[d.ItemID] = true
	}
	if current, ok := g.Reviewer(); ok && current != reviewerID {
		return nil, ErrReviewerConflict
	}
	planned := make([]Delegation, 0, len(g.Items))
	for _, item := range g.Items {
		if covered[item.ID] {
			continue
		}
		planned = append(planned, Delegation{
			PeriodID:    g.PeriodID,
			ItemID:      item.ID,
			AssetNumber: g.AssetNumber,
			ReviewerID:  reviewerID,
			AssignedBy:  assignedBy,
			AssignedAt:  at,
			Status:      DelegationActive,
		})
	}
	return planned, nil
}

func (g AssetGroup) contains(itemID int64) bool {
	for _, item := range g.Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

// GroupLockKey derives the advisory lock key serialising work on one asset
// group.
func GroupLockKey(periodID int64, assetNumber string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.FormatInt(periodID, 10)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(assetNumber))
	return int64(h.Sum64())
}
