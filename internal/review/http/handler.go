// Package reviewhttp exposes the useful-life review workflow as a JSON API.
package reviewhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rvu/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rvu/internal/review"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

const massReviseScope = "review.mass_revise"

type reviewService interface {
	ListPeriods(ctx context.Context, p shared.Principal) ([]review.Period, error)
	GetPeriod(ctx context.Context, p shared.Principal, id int64) (review.Period, error)
	CreatePeriod(ctx context.Context, p shared.Principal, in review.CreatePeriodInput) (review.Period, error)
	UpdatePeriod(ctx context.Context, p shared.Principal, in review.UpdatePeriodInput) (review.Period, error)
	StartPeriod(ctx context.Context, p shared.Principal, id int64) (review.Period, error)
	ClosePeriod(ctx context.Context, p shared.Principal, id int64) (review.Period, error)
	ListItems(ctx context.Context, p shared.Principal, f review.ItemFilter) ([]review.Item, error)
	GetItem(ctx context.Context, p shared.Principal, id int64) (review.Item, error)
	ImportItems(ctx context.Context, p shared.Principal, periodID int64, rows []review.ImportRow) (int64, error)
	ReviseItem(ctx context.Context, p shared.Principal, in review.ReviseInput) (review.ReviseResult, error)
	ListDelegations(ctx context.Context, p shared.Principal, periodID int64) ([]review.Delegation, error)
	Delegate(ctx context.Context, p shared.Principal, in review.DelegateInput) (review.Delegation, error)
	RemoveDelegation(ctx context.Context, p shared.Principal, id int64) (int64, error)
	Approve(ctx context.Context, p shared.Principal, itemID int64, note string) (review.Item, error)
	Revert(ctx context.Context, p shared.Principal, itemID int64, reason string) (review.Item, error)
	MassApprove(ctx context.Context, p shared.Principal, periodID int64, ids []int64) (review.BatchResult, error)
	MassRevise(ctx context.Context, p shared.Principal, in review.MassReviseInput) (review.BatchResult, error)
	ListComments(ctx context.Context, p shared.Principal, itemID int64) ([]review.Comment, error)
	AddComment(ctx context.Context, p shared.Principal, in review.CommentInput) (review.Comment, error)
	RespondComment(ctx context.Context, p shared.Principal, commentID int64, body string) (review.Comment, error)
}

// IdempotencyStore claims client request keys.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key, scope string) error
}

// Handler wires HTTP endpoints for review periods, items and delegations.
type Handler struct {
	logger      *slog.Logger
	service     reviewService
	idempotency IdempotencyStore
	validator   *validator.Validate
}

// NewHandler constructs a review HTTP handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service reviewService, idempotency IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
		validator:   validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.listPeriods)
		r.Post("/", h.createPeriod)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getPeriod)
			r.Patch("/", h.updatePeriod)
			r.Post("/start", h.startPeriod)
			r.Post("/close", h.closePeriod)
			r.Get("/items", h.listItems)
			r.Post("/items/import", h.importItems)
			r.Get("/delegations", h.listDelegations)
			r.Post("/delegations", h.delegate)
			r.Post("/mass-revise", h.massRevise)
			r.Post("/mass-approve", h.massApprove)
		})
	})
	r.Route("/items/{id}", func(r chi.Router) {
		r.Get("/", h.getItem)
		r.Put("/revision", h.reviseItem)
		r.Post("/approve", h.approve)
		r.Post("/revert", h.revert)
		r.Get("/comments", h.listComments)
		r.Post("/comments", h.addComment)
	})
	r.Delete("/delegations/{id}", h.removeDelegation)
	r.Post("/comments/{id}/response", h.respondComment)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), p)
	if err != nil {
		h.fail(w, "list periods", err)
		return
	}
	out := make([]periodView, 0, len(periods))
	for _, period := range periods {
		out = append(out, newPeriodView(period))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	period, err := h.service.GetPeriod(r.Context(), p, id)
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req createPeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.CreatePeriod(r.Context(), p, in)
	if err != nil {
		h.fail(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newPeriodView(period))
}

func (h *Handler) updatePeriod(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req updatePeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input(id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.UpdatePeriod(r.Context(), p, in)
	if err != nil {
		h.fail(w, "update period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) startPeriod(w http.ResponseWriter, r *http.Request) {
	h.periodTransition(w, r, "start period", h.service.StartPeriod)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	h.periodTransition(w, r, "close period", h.service.ClosePeriod)
}

func (h *Handler) periodTransition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, shared.Principal, int64) (review.Period, error)) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	period, err := fn(r.Context(), p, id)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	filter, err := itemFilterFromQuery(id, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListItems(r.Context(), p, filter)
	if err != nil {
		h.fail(w, "list items", err)
		return
	}
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		out = append(out, newItemView(item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) importItems(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req importRequest
	if !h.decode(w, r, &req) {
		return
	}
	rows, err := req.rows()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.ImportItems(r.Context(), p, id, rows)
	if err != nil {
		h.fail(w, "import items", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"imported": n})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), p, id)
	if err != nil {
		h.fail(w, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newItemView(item))
}

func (h *Handler) reviseItem(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req reviseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input(id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ReviseItem(r.Context(), p, in)
	if err != nil {
		h.fail(w, "revise item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reviseResponse{
		Item:          newItemView(result.Item),
		PreviousTotal: result.PreviousTotal,
		RevisedTotal:  result.RevisedTotal,
		AutoApproved:  result.AutoApproved,
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.Approve(r.Context(), p, id, req.Note)
	if err != nil {
		h.fail(w, "approve item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newItemView(item))
}

func (h *Handler) revert(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req revertRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.Revert(r.Context(), p, id, req.Reason)
	if err != nil {
		h.fail(w, "revert item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newItemView(item))
}

func (h *Handler) listDelegations(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	ds, err := h.service.ListDelegations(r.Context(), p, id)
	if err != nil {
		h.fail(w, "list delegations", err)
		return
	}
	out := make([]delegationView, 0, len(ds))
	for _, d := range ds {
		out = append(out, newDelegationView(d))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) delegate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req delegateRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.Delegate(r.Context(), p, review.DelegateInput{PeriodID: id, ItemID: req.ItemID, ReviewerID: req.ReviewerID})
	if err != nil {
		h.fail(w, "delegate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newDelegationView(d))
}

func (h *Handler) removeDelegation(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	n, err := h.service.RemoveDelegation(r.Context(), p, id)
	if err != nil {
		h.fail(w, "remove delegation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (h *Handler) massApprove(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req massApproveRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.MassApprove(r.Context(), p, id, req.ItemIDs)
	if err != nil {
		h.fail(w, "mass approve", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) massRevise(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req massReviseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input(id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Claim(r.Context(), key, massReviseScope); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
				return
			}
			h.fail(w, "claim idempotency key", err)
			return
		}
	}
	result, err := h.service.MassRevise(r.Context(), p, in)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if rerr := h.idempotency.Release(context.WithoutCancel(r.Context()), key, massReviseScope); rerr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", rerr))
			}
		}
		h.fail(w, "mass revise", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	comments, err := h.service.ListComments(r.Context(), p, id)
	if err != nil {
		h.fail(w, "list comments", err)
		return
	}
	out := make([]commentView, 0, len(comments))
	for _, c := range comments {
		out = append(out, newCommentView(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.AddComment(r.Context(), p, review.CommentInput{ItemID: id, Body: req.Body, RecipientID: req.RecipientID})
	if err != nil {
		h.fail(w, "add comment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newCommentView(c))
}

func (h *Handler) respondComment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req responseRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.RespondComment(r.Context(), p, id, req.Body)
	if err != nil {
		h.fail(w, "respond comment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newCommentView(c))
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return shared.Principal{}, false
	}
	return p, true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if clientError(err) {
		h.logger.Debug(op, slog.Any("error", err))
	} else {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func clientError(err error) bool {
	for _, kind := range []error{
		shared.ErrValidation, shared.ErrConfigurationMissing, shared.ErrInvalidTransition,
		shared.ErrReviewerConflict, shared.ErrAlreadyDelegated, shared.ErrPeriodClosed,
		shared.ErrBatchInProgress, shared.ErrNotFound, shared.ErrForbidden,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func itemFilterFromQuery(periodID int64, r *http.Request) (review.ItemFilter, error) {
	q := r.URL.Query()
	f := review.ItemFilter{
		PeriodID:    periodID,
		Status:      review.ItemStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		AssetNumber: strings.TrimSpace(q.Get("asset")),
	}
	if v := q.Get("reviewer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return review.ItemFilter{}, httpx.ErrMalformedBody
		}
		f.ReviewerID = id
	}
	if v := q.Get("changed"); v != "" {
		changed, err := strconv.ParseBool(v)
		if err != nil {
			return review.ItemFilter{}, httpx.ErrMalformedBody
		}
		f.Changed = &changed
	}
	return f, nil
}
