package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-rvu/internal/review"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// Source loads the review data the read models are computed from.
type Source interface {
	CompanyAssets(ctx context.Context, f Filter) ([]Asset, error)
	PeriodAssets(ctx context.Context, periodID int64) ([]Asset, error)
	Reviewers(ctx context.Context, periodID int64) (map[int64]int64, error)
	Period(ctx context.Context, id int64) (review.Period, error)
	Item(ctx context.Context, id int64) (review.Item, error)
}

// Cache stores computed read models keyed by a versioned key.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service serves simulation, schedule and summary read models.
type Service struct {
	source Source
	cache  Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the read-model service. cache may be nil.
func NewService(source Source, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger}
}

// Simulate runs the depreciation comparison for the caller's company.
func (s *Service) Simulate(ctx context.Context, p shared.Principal, f Filter) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	if !p.CanAccess(f.CompanyID) {
		return Result{}, fmt.Errorf("%w: company %d", shared.ErrForbidden, f.CompanyID)
	}
	parts := []string{
		"simulation",
		strconv.FormatInt(f.CompanyID, 10),
		f.From.Format(time.DateOnly),
		f.To.Format(time.DateOnly),
		string(f.Status),
		f.AccountClass,
		unitToken(f.UnitID),
		f.CostCenter,
	}
	out, err := cached(ctx, s, parts, func(ctx context.Context) (Result, error) {
		assets, err := s.source.CompanyAssets(ctx, f)
		if err != nil {
			return Result{}, err
		}
		return Simulate(assets, f), nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("depreciation simulated",
		slog.Int64("company_id", f.CompanyID),
		slog.Int64("user_id", p.UserID),
		slog.Int("rows", len(out.Analytic)))
	return out, nil
}

// Schedule returns the monthly schedule of an item over its effective life.
func (s *Service) Schedule(ctx context.Context, p shared.Principal, itemID int64) (ScheduleView, error) {
	item, err := s.source.Item(ctx, itemID)
	if err != nil {
		return ScheduleView{}, err
	}
	if !p.CanAccess(item.CompanyID) {
		return ScheduleView{}, fmt.Errorf("%w: item %d", shared.ErrForbidden, itemID)
	}
	return ItemSchedule(item), nil
}

// Summary returns the review read model of a period.
func (s *Service) Summary(ctx context.Context, p shared.Principal, periodID int64) (PeriodSummary, error) {
	period, err := s.source.Period(ctx, periodID)
	if err != nil {
		return PeriodSummary{}, err
	}
	if !p.CanAccess(period.CompanyID) {
		return PeriodSummary{}, fmt.Errorf("%w: period %d", shared.ErrForbidden, periodID)
	}
	return cached(ctx, s, []string{"summary", strconv.FormatInt(periodID, 10)}, func(ctx context.Context) (PeriodSummary, error) {
		var (
			assets    []Asset
			reviewers map[int64]int64
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			assets, err = s.source.PeriodAssets(gctx, periodID)
			return err
		})
		g.Go(func() error {
			var err error
			reviewers, err = s.source.Reviewers(gctx, periodID)
			return err
		})
		if err := g.Wait(); err != nil {
			return PeriodSummary{}, err
		}
		for i := range assets {
			if id, ok := reviewers[assets[i].Item.ID]; ok {
				assets[i].ReviewerID = &id
			}
		}
		return Summarize(period, assets), nil
	})
}

// cached resolves the value through the versioned cache, coalescing
// concurrent builds of the same key.
func cached[T any](ctx context.Context, s *Service, parts []string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.cache == nil {
		return build(ctx)
	}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("simulation cache key", slog.Any("error", err))
		return build(ctx)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out T
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return build(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func unitToken(id *int64) string {
	if id == nil {
		return "all"
	}
	return strconv.FormatInt(*id, 10)
}
