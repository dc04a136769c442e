package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

func groupOf(ids ...int64) AssetGroup {
	g := AssetGroup{PeriodID: 1, AssetNumber: "A-1"}
	for i, id := range ids {
		g.Items = append(g.Items, Item{ID: id, PeriodID: 1, AssetNumber: "A-1", SubNumber: i})
	}
	return g
}

func activeDelegation(itemID, reviewerID int64) Delegation {
	return Delegation{PeriodID: 1, ItemID: itemID, AssetNumber: "A-1", ReviewerID: reviewerID, Status: DelegationActive}
}

func TestGroupDelegatePlansEveryUncoveredMember(t *testing.T) {
	g := groupOf(1, 2, 3)
	g.Active = []Delegation{activeDelegation(1, 7)}
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	planned, err := g.Delegate(2, 7, 99, at)
	require.NoError(t, err)
	require.Len(t, planned, 2)
	for _, d := range planned {
		assert.Equal(t, int64(7), d.ReviewerID)
		assert.Equal(t, int64(99), d.AssignedBy)
		assert.Equal(t, at, d.AssignedAt)
		assert.Equal(t, DelegationActive, d.Status)
		assert.NotEqual(t, int64(1), d.ItemID)
	}
}

func TestGroupDelegateChecksTargetBeforeReviewer(t *testing.T) {
	g := groupOf(1, 2)
	g.Active = []Delegation{activeDelegation(1, 7)}

	_, err := g.Delegate(1, 8, 99, time.Now())
	require.ErrorIs(t, err, shared.ErrAlreadyDelegated)

	_, err = g.Delegate(2, 8, 99, time.Now())
	require.ErrorIs(t, err, shared.ErrReviewerConflict)
}

func TestGroupDelegateIgnoresRemovedDelegations(t *testing.T) {
	g := groupOf(1, 2)
	removed := activeDelegation(1, 7)
	removed.Status = DelegationRemoved
	g.Active = []Delegation{removed}

	_, ok := g.Reviewer()
	assert.False(t, ok)
	planned, err := g.Delegate(1, 8, 99, time.Now())
	require.NoError(t, err)
	assert.Len(t, planned, 2)
}

func TestGroupDelegateUnknownItem(t *testing.T) {
	_, err := groupOf(1).Delegate(5, 7, 99, time.Now())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGroupLockKeyIsStable(t *testing.T) {
	assert.Equal(t, GroupLockKey(1, "A-1"), GroupLockKey(1, "A-1"))
	assert.NotEqual(t, GroupLockKey(1, "A-1"), GroupLockKey(2, "A-1"))
	assert.NotEqual(t, GroupLockKey(1, "A-1"), GroupLockKey(1, "A-2"))
	assert.NotEqual(t, GroupLockKey(11, "A"), GroupLockKey(1, "1A"))
}
