package simulation

import (
	"context"

	"github.com/odyssey-erp/odyssey-rvu/internal/review"
)

// ReviewReader is the read side of the review repository.
type ReviewReader interface {
	GetPeriod(ctx context.Context, id int64) (review.Period, error)
	ListPeriods(ctx context.Context, companyIDs []int64) ([]review.Period, error)
	GetItem(ctx context.Context, id int64) (review.Item, error)
	ListItems(ctx context.Context, f review.ItemFilter) ([]review.Item, error)
	ListDelegations(ctx context.Context, periodID int64) ([]review.Delegation, error)
}

type repositorySource struct {
	reader ReviewReader
}

// NewRepositorySource adapts the review repository into a Source.
func NewRepositorySource(reader ReviewReader) Source {
	return &repositorySource{reader: reader}
}

func (s *repositorySource) CompanyAssets(ctx context.Context, f Filter) ([]Asset, error) {
	periods, err := s.reader.ListPeriods(ctx, []int64{f.CompanyID})
	if err != nil {
		return nil, err
	}
	var out []Asset
	for _, p := range periods {
		items, err := s.reader.ListItems(ctx, review.ItemFilter{PeriodID: p.ID})
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if !matches(f, p, it) {
				continue
			}
			out = append(out, Asset{Item: it, BaseDate: p.BaseDate, OpenedOn: p.OpenedOn})
		}
	}
	return out, nil
}

func matches(f Filter, p review.Period, it review.Item) bool {
	if f.AccountClass != "" && it.AccountClass != f.AccountClass {
		return false
	}
	if f.CostCenter != "" && it.CostCenter != f.CostCenter {
		return false
	}
	if f.UnitID != nil {
		unit := it.UnitID
		if unit == nil {
			unit = p.UnitID
		}
		if unit == nil || *unit != *f.UnitID {
			return false
		}
	}
	return true
}

func (s *repositorySource) PeriodAssets(ctx context.Context, periodID int64) ([]Asset, error) {
	p, err := s.reader.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	items, err := s.reader.ListItems(ctx, review.ItemFilter{PeriodID: periodID})
	if err != nil {
		return nil, err
	}
	out := make([]Asset, 0, len(items))
	for _, it := range items {
		out = append(out, Asset{Item: it, BaseDate: p.BaseDate, OpenedOn: p.OpenedOn})
	}
	return out, nil
}

func (s *repositorySource) Reviewers(ctx context.Context, periodID int64) (map[int64]int64, error) {
	ds, err := s.reader.ListDelegations(ctx, periodID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(ds))
	for _, d := range ds {
		if d.Status == review.DelegationActive {
			out[d.ItemID] = d.ReviewerID
		}
	}
	return out, nil
}

func (s *repositorySource) Period(ctx context.Context, id int64) (review.Period, error) {
	return s.reader.GetPeriod(ctx, id)
}

func (s *repositorySource) Item(ctx context.Context, id int64) (review.Item, error) {
	return s.reader.GetItem(ctx, id)
}
