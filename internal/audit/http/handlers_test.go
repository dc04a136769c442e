package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

type stubQueryService struct {
	pages       [][]audit.HistoryEntry
	lastHistory audit.HistoryFilters
	lastEntries audit.EntryFilters
}

func (s *stubQueryService) History(ctx context.Context, p shared.Principal, f audit.HistoryFilters) (audit.HistoryResult, error) {
	s.lastHistory = f
	idx := f.Page - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.pages) {
		return audit.HistoryResult{Rows: []audit.HistoryEntry{}}, nil
	}
	return audit.HistoryResult{
		Rows:   s.pages[idx],
		Paging: audit.PagingInfo{Page: f.Page, PageSize: f.PageSize, HasNext: idx+1 < len(s.pages)},
	}, nil
}

func (s *stubQueryService) Entries(ctx context.Context, p shared.Principal, f audit.EntryFilters) (audit.EntryResult, error) {
	s.lastEntries = f
	return audit.EntryResult{Rows: []audit.Entry{{ID: 1, Action: "period.close", Entity: "review_period", EntityID: "3"}}}, nil
}

func newRouter(svc QueryService) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func doRequest(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 4, CompanyIDs: []int64{10}}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHistoryParsesFilters(t *testing.T) {
	svc := &stubQueryService{}
	rr := doRequest(newRouter(svc), "/history?period_id=3&item_id=9&reviewer_id=7&q=engine&page=2&page_size=5")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(3), svc.lastHistory.PeriodID)
	assert.Equal(t, int64(9), svc.lastHistory.ItemID)
	assert.Equal(t, int64(7), svc.lastHistory.ReviewerID)
	assert.Equal(t, "engine", svc.lastHistory.Query)
	assert.Equal(t, 2, svc.lastHistory.Page)
	assert.Equal(t, 5, svc.lastHistory.PageSize)
}

func TestHistoryRejectsBadFilter(t *testing.T) {
	rr := doRequest(newRouter(&stubQueryService{}), "/history?period_id=abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEntriesReturnsJSON(t *testing.T) {
	svc := &stubQueryService{}
	rr := doRequest(newRouter(svc), "/audit?entity=review_period&actor_id=4")

	require.Equal(t, http.StatusOK, rr.Code)
	var body audit.EntryResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "period.close", body.Rows[0].Action)
	assert.Equal(t, "review_period", svc.lastEntries.Entity)
	assert.Equal(t, int64(4), svc.lastEntries.ActorID)
}

func TestExportWalksAllPages(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := &stubQueryService{pages: [][]audit.HistoryEntry{
		{{PeriodID: 1, ItemID: 2, AssetNumber: "A-1", Action: audit.ActionApproved, PreviousMonths: 60, RevisedMonths: 96, Status: "APPROVED", At: at}},
		{{PeriodID: 1, ItemID: 3, AssetNumber: "A-1", Action: audit.ActionReverted, Reason: "wrong, base", At: at}},
	}}
	rr := doRequest(newRouter(svc), "/history/export.csv")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "at,period_id"))
	assert.Contains(t, lines[1], "approved")
	assert.Contains(t, lines[2], `"wrong, base"`)
	assert.Equal(t, exportPageSize, svc.lastHistory.PageSize)
}

func TestHistoryRequiresPrincipal(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(&stubQueryService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
