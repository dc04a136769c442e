package review

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/db"
)

type memoryReviewRepo struct {
	periods     map[int64]Period
	items       map[int64]Item
	delegations map[int64]Delegation
	comments    map[int64]Comment
	history     []audit.HistoryEntry
	entries     []audit.Entry
	nextID      int64
	failAudit   bool

	// commitConflicts fails that many commits with a serialization conflict.
	commitConflicts int
	// concurrent runs once, after the next transaction rolls back, as the
	// write of a transaction that committed first. Setting it makes the
	// next commit conflict.
	concurrent func(r *memoryReviewRepo)
}

type memoryReviewTx struct {
	repo *memoryReviewRepo
}

func newMemoryReviewRepo() *memoryReviewRepo {
	return &memoryReviewRepo{
		periods:     make(map[int64]Period),
		items:       make(map[int64]Item),
		delegations: make(map[int64]Delegation),
		comments:    make(map[int64]Comment),
	}
}

func (r *memoryReviewRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryReviewRepo) addPeriod(p Period) Period {
	if p.ID == 0 {
		p.ID = r.id()
	}
	r.periods[p.ID] = p
	return p
}

func (r *memoryReviewRepo) addItem(it Item) Item {
	if it.ID == 0 {
		it.ID = r.id()
	}
	if it.Status == "" {
		it.Status = ItemStatusPending
	}
	it.CompanyID = r.periods[it.PeriodID].CompanyID
	r.items[it.ID] = it
	return it
}

func (r *memoryReviewRepo) delegate(periodID, itemID, reviewerID int64) Delegation {
	d := Delegation{
		ID:          r.id(),
		PeriodID:    periodID,
		ItemID:      itemID,
		AssetNumber: r.items[itemID].AssetNumber,
		ReviewerID:  reviewerID,
		Status:      DelegationActive,
	}
	r.delegations[d.ID] = d
	return d
}

func (r *memoryReviewRepo) activeFor(itemID int64) []Delegation {
	var out []Delegation
	for _, d := range r.delegations {
		if d.ItemID == itemID && d.Status == DelegationActive {
			out = append(out, d)
		}
	}
	return out
}

func (r *memoryReviewRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := r.atomically(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return r.commitConflict()
	})
	if err != nil && r.concurrent != nil {
		other := r.concurrent
		r.concurrent = nil
		other(r)
	}
	return err
}

func (r *memoryReviewRepo) atomically(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	periods, items := maps.Clone(r.periods), maps.Clone(r.items)
	delegations, comments := maps.Clone(r.delegations), maps.Clone(r.comments)
	history, entries := len(r.history), len(r.entries)
	if err := fn(ctx, &memoryReviewTx{repo: r}); err != nil {
		r.periods, r.items, r.delegations, r.comments = periods, items, delegations, comments
		r.history, r.entries = r.history[:history], r.entries[:entries]
		return err
	}
	return nil
}

func (r *memoryReviewRepo) commitConflict() error {
	if r.concurrent == nil && r.commitConflicts == 0 {
		return nil
	}
	if r.commitConflicts > 0 {
		r.commitConflicts--
	}
	return fmt.Errorf("%w: could not serialize access", db.ErrConflict)
}

func (r *memoryReviewRepo) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (r *memoryReviewRepo) ListPeriods(ctx context.Context, companyIDs []int64) ([]Period, error) {
	var out []Period
	for _, p := range r.periods {
		for _, id := range companyIDs {
			if p.CompanyID == id {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryReviewRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	it, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (r *memoryReviewRepo) ListItems(ctx context.Context, f ItemFilter) ([]Item, error) {
	var out []Item
	for _, it := range r.items {
		if it.PeriodID != f.PeriodID {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if f.AssetNumber != "" && it.AssetNumber != f.AssetNumber {
			continue
		}
		if f.Changed != nil && it.Changed != *f.Changed {
			continue
		}
		if f.ReviewerID != 0 {
			active := r.activeFor(it.ID)
			if len(active) == 0 || active[0].ReviewerID != f.ReviewerID {
				continue
			}
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryReviewRepo) ListDelegations(ctx context.Context, periodID int64) ([]Delegation, error) {
	var out []Delegation
	for _, d := range r.delegations {
		if d.PeriodID == periodID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryReviewRepo) GetComment(ctx context.Context, id int64) (Comment, error) {
	c, ok := r.comments[id]
	if !ok {
		return Comment{}, ErrCommentNotFound
	}
	return c, nil
}

func (r *memoryReviewRepo) ListComments(ctx context.Context, itemID int64) ([]Comment, error) {
	var out []Comment
	for _, c := range r.comments {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryReviewTx) WriteRecord(ctx context.Context, rec audit.Record) error {
	if tx.repo.failAudit {
		return errors.New("audit table unavailable")
	}
	tx.repo.history = append(tx.repo.history, rec.History...)
	tx.repo.entries = append(tx.repo.entries, rec.Entries...)
	return nil
}

func (tx *memoryReviewTx) Savepoint(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return tx.repo.atomically(ctx, fn)
}

func (tx *memoryReviewTx) LockCompany(ctx context.Context, companyID int64) error { return nil }

func (tx *memoryReviewTx) LockPeriod(ctx context.Context, id int64, exclusive bool) (Period, error) {
	return tx.repo.GetPeriod(ctx, id)
}

func (tx *memoryReviewTx) LockPeriodOfItem(ctx context.Context, itemID int64) (Period, error) {
	it, ok := tx.repo.items[itemID]
	if !ok {
		return Period{}, ErrItemNotFound
	}
	return tx.repo.GetPeriod(ctx, it.PeriodID)
}

func (tx *memoryReviewTx) LockAssetGroup(ctx context.Context, periodID int64, assetNumber string) error {
	return nil
}

func (tx *memoryReviewTx) ActivePeriodExists(ctx context.Context, companyID int64) (bool, error) {
	for _, p := range tx.repo.periods {
		if p.CompanyID == companyID && !p.Closed() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryReviewTx) PeriodExistsForYear(ctx context.Context, companyID int64, year int) (bool, error) {
	for _, p := range tx.repo.periods {
		if p.CompanyID == companyID && p.OpenedOn.Year() == year {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryReviewTx) CountPeriodCodes(ctx context.Context, prefix string) (int, error) {
	n := 0
	for _, p := range tx.repo.periods {
		if strings.HasPrefix(p.Code, prefix) {
			n++
		}
	}
	return n, nil
}

func (tx *memoryReviewTx) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	for _, existing := range tx.repo.periods {
		if existing.Code == p.Code {
			return Period{}, fmt.Errorf("%w: review_periods_code_key", db.ErrConflict)
		}
	}
	return tx.repo.addPeriod(p), nil
}

func (tx *memoryReviewTx) UpdatePeriod(ctx context.Context, p Period) error {
	if _, ok := tx.repo.periods[p.ID]; !ok {
		return ErrPeriodNotFound
	}
	tx.repo.periods[p.ID] = p
	return nil
}

func (tx *memoryReviewTx) CountForClose(ctx context.Context, periodID int64) (CloseCounts, error) {
	var c CloseCounts
	for _, it := range tx.repo.items {
		if it.PeriodID != periodID {
			continue
		}
		c.Items++
		if len(tx.repo.activeFor(it.ID)) > 0 {
			c.Delegated++
		}
		if it.Status != ItemStatusReviewed && it.Status != ItemStatusApproved && !it.Changed {
			c.Untouched++
		}
		if it.Status == ItemStatusReviewed {
			c.Reviewed++
		}
	}
	return c, nil
}

func (tx *memoryReviewTx) LoadItemForUpdate(ctx context.Context, id int64) (Item, error) {
	return tx.repo.GetItem(ctx, id)
}

func (tx *memoryReviewTx) GroupItems(ctx context.Context, periodID int64, assetNumber string) ([]Item, error) {
	return tx.repo.ListItems(ctx, ItemFilter{PeriodID: periodID, AssetNumber: assetNumber})
}

func (tx *memoryReviewTx) SaveItem(ctx context.Context, item Item) error {
	if _, ok := tx.repo.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryReviewTx) CopyItems(ctx context.Context, items []Item) (int64, error) {
	for _, it := range items {
		tx.repo.addItem(it)
	}
	return int64(len(items)), nil
}

func (tx *memoryReviewTx) GroupDelegations(ctx context.Context, periodID int64, assetNumber string) ([]Delegation, error) {
	var out []Delegation
	for _, d := range tx.repo.delegations {
		if d.PeriodID == periodID && d.AssetNumber == assetNumber && d.Status == DelegationActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryReviewTx) InsertDelegations(ctx context.Context, ds []Delegation) ([]Delegation, error) {
	out := make([]Delegation, 0, len(ds))
	for _, d := range ds {
		if len(tx.repo.activeFor(d.ItemID)) > 0 {
			return nil, fmt.Errorf("%w: review_delegations_one_active", db.ErrConflict)
		}
		d.ID = tx.repo.id()
		tx.repo.delegations[d.ID] = d
		out = append(out, d)
	}
	return out, nil
}

func (tx *memoryReviewTx) LoadDelegation(ctx context.Context, id int64) (Delegation, error) {
	d, ok := tx.repo.delegations[id]
	if !ok {
		return Delegation{}, ErrDelegationNotFound
	}
	return d, nil
}

func (tx *memoryReviewTx) RemoveGroupDelegations(ctx context.Context, periodID int64, assetNumber string, removedBy int64, at time.Time) (int64, error) {
	var n int64
	for id, d := range tx.repo.delegations {
		if d.PeriodID == periodID && d.AssetNumber == assetNumber && d.Status == DelegationActive {
			d.Status = DelegationRemoved
			tx.repo.delegations[id] = d
			n++
		}
	}
	return n, nil
}

func (tx *memoryReviewTx) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	c.ID = tx.repo.id()
	tx.repo.comments[c.ID] = c
	return c, nil
}

func (tx *memoryReviewTx) LoadCommentForUpdate(ctx context.Context, id int64) (Comment, error) {
	return tx.repo.GetComment(ctx, id)
}

func (tx *memoryReviewTx) SaveCommentResponse(ctx context.Context, c Comment) error {
	tx.repo.comments[c.ID] = c
	return nil
}
