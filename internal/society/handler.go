package society

import (
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

// Handler exposes society setup and lookups over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the society handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes attaches the top-level society routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAll("society.bootstrap")).Post("/", h.bootstrap)
	r.Get("/by-code/{joinCode}", h.byJoinCode)
}

// MountScopedRoutes attaches routes that live under a society scope.
func (h *Handler) MountScopedRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("society.view"))
		r.Get("/", h.get)
		r.Get("/wings", h.listWings)
		r.Get("/summary", h.summary)
		r.Get("/admins", h.listAdmins)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("society.manage"))
		r.Post("/admins", h.addAdmin)
	})
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	var in BootstrapInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	in.AdminUserID = rbac.UserIDFromContext(r.Context())
	soc, err := h.service.Bootstrap(r.Context(), in)
	if err != nil {
		h.respondErr(w, "bootstrap society", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, soc)
}

func (h *Handler) byJoinCode(w http.ResponseWriter, r *http.Request) {
	soc, err := h.service.GetByJoinCode(r.Context(), chi.URLParam(r, "joinCode"))
	if err != nil {
		h.respondErr(w, "lookup join code", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": soc.ID, "name": soc.Name, "total_wings": soc.TotalWings})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	soc, err := h.service.Get(r.Context(), scope.SocietyID)
	if err != nil {
		h.respondErr(w, "get society", err)
		return
	}
	httpx.JSON(w, http.StatusOK, soc)
}

func (h *Handler) listWings(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	wings, err := h.service.ListWings(r.Context(), scope)
	if err != nil {
		h.respondErr(w, "list wings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"wings": wings})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	sum, err := h.service.DashboardSummary(r.Context(), scope)
	if err != nil {
		h.respondErr(w, "society summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

type addAdminRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) addAdmin(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	var req addAdminRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddAdmin(r.Context(), scope, req.UserID, rbac.UserIDFromContext(r.Context())); err != nil {
		h.respondErr(w, "add admin", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"user_id": req.UserID})
}

func (h *Handler) listAdmins(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	admins, err := h.service.ListAdmins(r.Context(), scope)
	if err != nil {
		h.respondErr(w, "list admins", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"admins": admins})
}

func scopeFromRequest(r *http.Request) (shared.SocietyScope, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "societyID"), 10, 64)
	if err != nil || id <= 0 {
		return shared.SocietyScope{}, shared.ErrScopeRequired
	}
	return shared.Scope(id), nil
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrSocietyExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", "society name already registered")
	case errors.Is(err, ErrWingNamesMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "wing name count does not match total wings")
	case errors.Is(err, ErrAlreadyAdmin):
		httpx.Problem(w, http.StatusConflict, "Conflict", "user is already an admin")
	case errors.Is(err, ErrSocietyNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "society not found")
	case errors.Is(err, shared.ErrScopeRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "society scope required")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}
