package gatepass

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/societyops/societyops/internal/platform/httpx"
	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/shared"
)

// Handler exposes the gate pass workflow over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the gatepass handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes attaches gatepass routes under a society scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("gatepass.view"))
		r.Get("/", h.listForDay)
		r.Get("/{passID}", h.get)
		r.Get("/flats/{wing}/{flat}", h.listForFlat)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("gatepass.write"))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("gatepass.screen"))
		r.Post("/{passID}/approve", h.approve)
		r.Post("/{passID}/reject", h.reject)
		r.Post("/scan/{code}", h.checkIn)
		r.Post("/{passID}/checkout", h.checkOut)
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
	in.CreatedBy = rbac.UserIDFromContext(r.Context())
	pass, err := h.service.Create(r.Context(), scope, in)
	if err != nil {
		h.respondErr(w, "create pass", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pass)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndPassID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid path parameters")
		return
	}
	pass, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		h.respondErr(w, "get pass", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pass)
}

func (h *Handler) listForDay(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
	}
	passes, err := h.service.ListForDay(r.Context(), scope, day)
	if err != nil {
		h.respondErr(w, "list passes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func (h *Handler) listForFlat(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	scope = scope.WithFlat(chi.URLParam(r, "wing"), chi.URLParam(r, "flat"))
	passes, err := h.service.ListForFlat(r.Context(), scope)
	if err != nil {
		h.respondErr(w, "list flat passes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Reject)
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.CheckOut)
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	code, err := uuid.Parse(chi.URLParam(r, "code"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid pass code")
		return
	}
	pass, err := h.service.CheckIn(r.Context(), scope, code, rbac.UserIDFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, "check in", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pass)
}

func (h *Handler) doTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Pass, error)) {
	scope, id, err := scopeAndPassID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid path parameters")
		return
	}
	pass, err := fn(r.Context(), scope, id, rbac.UserIDFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, "pass transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pass)
}

func scopeFromRequest(r *http.Request) (shared.SocietyScope, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "societyID"), 10, 64)
	if err != nil || id <= 0 {
		return shared.SocietyScope{}, shared.ErrScopeRequired
	}
	return shared.Scope(id), nil
}

func scopeAndPassID(r *http.Request) (shared.SocietyScope, int64, error) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		return shared.SocietyScope{}, 0, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "passID"), 10, 64)
	if err != nil || id <= 0 {
		return shared.SocietyScope{}, 0, shared.ErrScopeRequired
	}
	return scope, id, nil
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrPassNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "gate pass not found")
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", "gate pass cannot move to that status")
	case errors.Is(err, shared.ErrScopeRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "society scope required")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}
