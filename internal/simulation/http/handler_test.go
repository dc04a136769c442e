package simulationhttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
	"github.com/odyssey-erp/odyssey-rvu/internal/simulation"
)

var testPrincipal = shared.Principal{UserID: 3, CompanyIDs: []int64{10}}

type stubService struct {
	simulateFn func(ctx context.Context, p shared.Principal, f simulation.Filter) (simulation.Result, error)
	scheduleFn func(ctx context.Context, p shared.Principal, itemID int64) (simulation.ScheduleView, error)
	summaryFn  func(ctx context.Context, p shared.Principal, periodID int64) (simulation.PeriodSummary, error)
}

func (s *stubService) Simulate(ctx context.Context, p shared.Principal, f simulation.Filter) (simulation.Result, error) {
	return s.simulateFn(ctx, p, f)
}

func (s *stubService) Schedule(ctx context.Context, p shared.Principal, itemID int64) (simulation.ScheduleView, error) {
	return s.scheduleFn(ctx, p, itemID)
}

func (s *stubService) Summary(ctx context.Context, p shared.Principal, periodID int64) (simulation.PeriodSummary, error) {
	return s.summaryFn(ctx, p, periodID)
}

func serve(svc *stubService, target string, withPrincipal bool) *httptest.ResponseRecorder {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if withPrincipal {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), testPrincipal))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestSimulateParsesFilter(t *testing.T) {
	var captured simulation.Filter
	svc := &stubService{simulateFn: func(ctx context.Context, p shared.Principal, f simulation.Filter) (simulation.Result, error) {
		captured = f
		return simulation.Result{
			Summary: []simulation.SummaryRow{{AccountClass: simulation.TotalClass, Assets: 2, OriginalTotal: decimal.NewFromInt(2400)}},
			Notice:  simulation.Notice,
		}, nil
	}}
	rr := serve(svc, "/simulation?company_id=10&from=2025-01-01&to=2025-12-31&status=Revised&unit_id=5&account_class=1.2", true)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(10), captured.CompanyID)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), captured.To)
	assert.Equal(t, simulation.StatusRevised, captured.Status)
	require.NotNil(t, captured.UnitID)
	assert.Equal(t, int64(5), *captured.UnitID)
	assert.Equal(t, "1.2", captured.AccountClass)

	var body simulation.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, simulation.Notice, body.Notice)
	assert.Equal(t, "2400", body.Summary[0].OriginalTotal.String())
}

func TestSimulateRejectsBadDates(t *testing.T) {
	rr := serve(&stubService{}, "/simulation?company_id=10&from=01/01/2025&to=2025-12-31", true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSimulateMapsServiceErrors(t *testing.T) {
	svc := &stubService{simulateFn: func(ctx context.Context, p shared.Principal, f simulation.Filter) (simulation.Result, error) {
		return simulation.Result{}, shared.ErrForbidden
	}}
	rr := serve(svc, "/simulation?company_id=99&from=2025-01-01&to=2025-12-31", true)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestScheduleAndSummaryRoutes(t *testing.T) {
	svc := &stubService{
		scheduleFn: func(ctx context.Context, p shared.Principal, itemID int64) (simulation.ScheduleView, error) {
			return simulation.ScheduleView{ItemID: itemID, Months: 24}, nil
		},
		summaryFn: func(ctx context.Context, p shared.Principal, periodID int64) (simulation.PeriodSummary, error) {
			if periodID != 4 {
				return simulation.PeriodSummary{}, shared.ErrNotFound
			}
			return simulation.PeriodSummary{PeriodID: 4, Code: "RV2025-01", Counts: simulation.StatusCounts{Pending: 3}}, nil
		},
	}

	rr := serve(svc, "/simulation/items/8/schedule", true)
	require.Equal(t, http.StatusOK, rr.Code)
	var view simulation.ScheduleView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, int64(8), view.ItemID)

	rr = serve(svc, "/simulation/periods/4/summary", true)
	require.Equal(t, http.StatusOK, rr.Code)
	var sum simulation.PeriodSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Counts.Pending)

	assert.Equal(t, http.StatusNotFound, serve(svc, "/simulation/periods/5/summary", true).Code)
	assert.Equal(t, http.StatusBadRequest, serve(svc, "/simulation/items/abc/schedule", true).Code)
}

func TestRoutesRequirePrincipal(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serve(&stubService{}, "/simulation/periods/4/summary", false).Code)
}
