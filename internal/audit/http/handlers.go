// Package audithttp serves review history and the audit trail.
package audithttp

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

const exportPageSize = 100

var errBadFilter = errors.New("filter tidak valid")

// QueryService defines the read contract for history and audit listings.
type QueryService interface {
	History(ctx context.Context, p shared.Principal, f audit.HistoryFilters) (audit.HistoryResult, error)
	Entries(ctx context.Context, p shared.Principal, f audit.EntryFilters) (audit.EntryResult, error)
}

// Handler menangani permintaan riwayat dan audit.
type Handler struct {
	logger  *slog.Logger
	service QueryService
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service QueryService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	filters, err := parseHistoryFilters(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	result, err := h.service.History(r.Context(), p, filters)
	if err != nil {
		h.handleServerError(w, "load review history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	page, size, err := parsePage(q)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	actor, err := parseID(q.Get("actor_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	result, err := h.service.Entries(r.Context(), p, audit.EntryFilters{
		ActorID:  actor,
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		h.handleServerError(w, "load audit trail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// handleExport menulis seluruh riwayat yang cocok dengan filter sebagai CSV.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	filters, err := parseHistoryFilters(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	filters.PageSize = exportPageSize
	var rows []audit.HistoryEntry
	for page := 1; ; page++ {
		filters.Page = page
		result, err := h.service.History(r.Context(), p, filters)
		if err != nil {
			h.handleServerError(w, "export review history", err)
			return
		}
		rows = append(rows, result.Rows...)
		if !result.Paging.HasNext {
			break
		}
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"review-history.csv\"")
	if err := writeHistoryCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func writeHistoryCSV(w http.ResponseWriter, rows []audit.HistoryEntry) error {
	cw := csv.NewWriter(w)
	header := []string{"at", "period_id", "item_id", "asset_number", "action", "reviewer_id", "supervisor_id", "previous_months", "revised_months", "status", "reason"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.PeriodID, 10),
			strconv.FormatInt(row.ItemID, 10),
			row.AssetNumber,
			string(row.Action),
			optionalID(row.ReviewerID),
			optionalID(row.SupervisorID),
			strconv.Itoa(row.PreviousMonths),
			strconv.Itoa(row.RevisedMonths),
			row.Status,
			row.Reason,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseHistoryFilters(q url.Values) (audit.HistoryFilters, error) {
	page, size, err := parsePage(q)
	if err != nil {
		return audit.HistoryFilters{}, err
	}
	var f audit.HistoryFilters
	f.Page, f.PageSize = page, size
	f.Query = strings.TrimSpace(q.Get("q"))
	for name, dst := range map[string]*int64{
		"period_id":     &f.PeriodID,
		"item_id":       &f.ItemID,
		"reviewer_id":   &f.ReviewerID,
		"supervisor_id": &f.SupervisorID,
	} {
		v, err := parseID(q.Get(name))
		if err != nil {
			return audit.HistoryFilters{}, err
		}
		*dst = v
	}
	return f, nil
}

func parsePage(q url.Values) (int, int, error) {
	page, err := parseInt(q.Get("page"))
	if err != nil {
		return 0, 0, err
	}
	size, err := parseInt(q.Get("page_size"))
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func parseID(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0, errBadFilter
	}
	return id, nil
}

func parseInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errBadFilter
	}
	return n, nil
}

func optionalID(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
