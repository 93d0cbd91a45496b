package complaints

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/societyops/societyops/internal/platform/httpx"
	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/shared"
)

// Handler exposes the complaint workflow over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the complaints handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes attaches complaint routes under a society scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("complaint.view"))
		r.Get("/", h.list)
		r.Get("/{complaintID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("complaint.write"))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("complaint.manage"))
		r.Post("/{complaintID}/start", h.start)
		r.Post("/{complaintID}/resolve", h.resolve)
		r.Post("/{complaintID}/reject", h.reject)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	in.RaisedBy = rbac.UserIDFromContext(r.Context())
	c, err := h.service.Create(r.Context(), scope, in)
	if err != nil {
		h.respondErr(w, "create complaint", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	complaints, pagination, err := h.service.List(r.Context(), scope, Status(r.URL.Query().Get("status")), page, perPage)
	if err != nil {
		h.respondErr(w, "list complaints", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"complaints": complaints,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndComplaintID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid path parameters")
		return
	}
	c, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		h.respondErr(w, "get complaint", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Start)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Resolve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Reject)
}

func (h *Handler) doTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Complaint, error)) {
	scope, id, err := scopeAndComplaintID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid path parameters")
		return
	}
	c, err := fn(r.Context(), scope, id, rbac.UserIDFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, "complaint transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func scopeFromRequest(r *http.Request) (shared.SocietyScope, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "societyID"), 10, 64)
	if err != nil || id <= 0 {
		return shared.SocietyScope{}, shared.ErrScopeRequired
	}
	return shared.Scope(id), nil
}

func scopeAndComplaintID(r *http.Request) (shared.SocietyScope, int64, error) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		return shared.SocietyScope{}, 0, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "complaintID"), 10, 64)
	if err != nil || id <= 0 {
		return shared.SocietyScope{}, 0, shared.ErrScopeRequired
	}
	return scope, id, nil
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrComplaintNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "complaint not found")
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", "complaint cannot move to that status")
	case errors.Is(err, shared.ErrScopeRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "society scope required")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}
