// Package simulationhttp serves the depreciation simulator, item schedules
// and review summaries.
package simulationhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rvu/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
	"github.com/odyssey-erp/odyssey-rvu/internal/simulation"
)

var errBadQuery = errors.New("invalid query parameter")

type simulationService interface {
	Simulate(ctx context.Context, p shared.Principal, f simulation.Filter) (simulation.Result, error)
	Schedule(ctx context.Context, p shared.Principal, itemID int64) (simulation.ScheduleView, error)
	Summary(ctx context.Context, p shared.Principal, periodID int64) (simulation.PeriodSummary, error)
}

// Handler exposes the read models over HTTP.
type Handler struct {
	logger  *slog.Logger
	service simulationService
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service simulationService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/simulation", func(r chi.Router) {
		r.Get("/", h.simulate)
		r.Get("/items/{id}/schedule", h.schedule)
		r.Get("/periods/{id}/summary", h.summary)
	})
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	res, err := h.service.Simulate(r.Context(), p, f)
	if err != nil {
		h.fail(w, "simulate depreciation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Schedule(r.Context(), p, id)
	if err != nil {
		h.fail(w, "item schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sum, err := h.service.Summary(r.Context(), p, id)
	if err != nil {
		h.fail(w, "review summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrForbidden):
		h.logger.Debug(op, slog.Any("error", err))
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseFilter(q url.Values) (simulation.Filter, error) {
	var f simulation.Filter
	var err error
	if f.CompanyID, err = parseInt(q.Get("company_id")); err != nil {
		return f, err
	}
	if f.From, err = parseDate(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		return f, err
	}
	f.Status = simulation.StatusFilter(strings.ToLower(strings.TrimSpace(q.Get("status"))))
	f.AccountClass = q.Get("account_class")
	f.CostCenter = q.Get("cost_center")
	if v := q.Get("unit_id"); v != "" {
		unit, err := parseInt(v)
		if err != nil {
			return f, err
		}
		f.UnitID = &unit
	}
	return f, nil
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, errBadQuery
	}
	return n, nil
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errBadQuery
	}
	return t, nil
}
