package review

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
)

// ItemFilter narrows item listings within a period.
type ItemFilter struct {
	PeriodID    int64
	Status      ItemStatus
	ReviewerID  int64
	AssetNumber string
	Changed     *bool
}

// Repository exposes read access and transactional writes for the workflow.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetPeriod(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context, companyIDs []int64) ([]Period, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, f ItemFilter) ([]Item, error)
	ListDelegations(ctx context.Context, periodID int64) ([]Delegation, error)
	GetComment(ctx context.Context, id int64) (Comment, error)
	ListComments(ctx context.Context, itemID int64) ([]Comment, error)
}

// TxRepository is the write side, bound to one transaction.
type TxRepository interface {
	audit.Writer

	// Savepoint runs fn in a nested transaction; its failure leaves the
	// outer transaction intact.
	Savepoint(ctx context.Context, fn func(context.Context, TxRepository) error) error

	LockCompany(ctx context.Context, companyID int64) error
	LockPeriod(ctx context.Context, id int64, exclusive bool) (Period, error)
	LockPeriodOfItem(ctx context.Context, itemID int64) (Period, error)
	LockAssetGroup(ctx context.Context, periodID int64, assetNumber string) error

	ActivePeriodExists(ctx context.Context, companyID int64) (bool, error)
	PeriodExistsForYear(ctx context.Context, companyID int64, year int) (bool, error)
	CountPeriodCodes(ctx context.Context, prefix string) (int, error)
	InsertPeriod(ctx context.Context, p Period) (Period, error)
	UpdatePeriod(ctx context.Context, p Period) error
	CountForClose(ctx context.Context, periodID int64) (CloseCounts, error)

	LoadItemForUpdate(ctx context.Context, id int64) (Item, error)
	GroupItems(ctx context.Context, periodID int64, assetNumber string) ([]Item, error)
	SaveItem(ctx context.Context, item Item) error
	CopyItems(ctx context.Context, items []Item) (int64, error)

	GroupDelegations(ctx context.Context, periodID int64, assetNumber string) ([]Delegation, error)
	InsertDelegations(ctx context.Context, ds []Delegation) ([]Delegation, error)
	LoadDelegation(ctx context.Context, id int64) (Delegation, error)
	RemoveGroupDelegations(ctx context.Context, periodID int64, assetNumber string, removedBy int64, at time.Time) (int64, error)

	InsertComment(ctx context.Context, c Comment) (Comment, error)
	LoadCommentForUpdate(ctx context.Context, id int64) (Comment, error)
	SaveCommentResponse(ctx context.Context, c Comment) error
}
