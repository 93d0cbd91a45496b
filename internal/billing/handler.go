package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/societyops/societyops/internal/platform/httpx"
	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/shared"
)

// Handler exposes billing over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the billing handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes attaches billing routes under a society scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("billing.view"))
		r.Get("/items", h.listItems)
		r.Get("/batches", h.batchSummaries)
		r.Get("/flats/{wing}/{flat}/bills", h.listFlatBills)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("billing.view"))
		r.Post("/bills/{billID}/submit", h.submitPayment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("billing.write"))
		r.Post("/batches", h.createBatch)
		r.Post("/bills/{billID}/paid", h.markPaid)
	})
}

func scopeFromRequest(r *http.Request) (shared.SocietyScope, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "societyID"), 10, 64)
	if err != nil || id <= 0 {
		return shared.SocietyScope{}, shared.ErrScopeRequired
	}
	return shared.Scope(id), nil
}

type createBatchRequest struct {
	Name      string       `json:"name" validate:"required,max=120"`
	Type      string       `json:"batch_type" validate:"required"`
	StartDate string       `json:"start_date"`
	Units     []UnitCharge `json:"units" validate:"required,min=1,dive"`
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	var req createBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var startDate time.Time
	if req.StartDate != "" {
		startDate, err = time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "start_date must be YYYY-MM-DD")
			return
		}
	}
	batch, err := h.service.CreateBatch(r.Context(), scope, CreateBatchInput{
		Name:      req.Name,
		Type:      BatchType(req.Type),
		StartDate: startDate,
		Units:     req.Units,
		ActorID:   rbac.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.respondErr(w, "create batch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) batchSummaries(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	from, err := parseDateOr(r.URL.Query().Get("from"), time.Time{})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDateOr(r.URL.Query().Get("to"), time.Now().UTC())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must be YYYY-MM-DD")
		return
	}
	summaries, err := h.service.BatchSummaries(r.Context(), scope, from, to, BatchType(r.URL.Query().Get("type")))
	if err != nil {
		h.respondErr(w, "batch summaries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

func (h *Handler) listFlatBills(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	scope = scope.WithFlat(chi.URLParam(r, "wing"), chi.URLParam(r, "flat"))
	bills, err := h.service.ListFlatBills(r.Context(), scope)
	if err != nil {
		h.respondErr(w, "list flat bills", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	items, err := h.service.ListItems(r.Context(), scope)
	if err != nil {
		h.respondErr(w, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.SubmitPayment)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.MarkPaid)
}

func (h *Handler) doTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, scope shared.SocietyScope, billID, actorID int64) (FlatBill, error)) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	billID, err := strconv.ParseInt(chi.URLParam(r, "billID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	bill, err := fn(r.Context(), scope, billID, rbac.UserIDFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, "bill transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrScopeRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, ErrBillNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrBadBatchType):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrBillNumberTaken):
		httpx.Problem(w, http.StatusConflict, "Conflict", "bill number collision, retry the batch")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseDateOr(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.DateOnly, raw)
}
