package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/societyops/societyops/internal/platform/httpx"
	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/shared"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes attaches ledger routes under a society scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("ledger.view"))
		r.Get("/groups", h.listGroups)
		r.Get("/accounts", h.listAccounts)
		r.Get("/balance", h.balance)
		r.Get("/reports/income-expenditure", h.incomeExpenditure)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("ledger.write"))
		r.Post("/accounts", h.createAccount)
		r.Post("/transactions", h.postTransaction)
	})
}

func scopeFromRequest(r *http.Request) (shared.SocietyScope, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "societyID"), 10, 64)
	if err != nil || id <= 0 {
		return shared.SocietyScope{}, shared.ErrScopeRequired
	}
	return shared.Scope(id), nil
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	groups, err := h.service.ListGroups(r.Context(), scope)
	if err != nil {
		h.respondErr(w, "list groups", err)
		return
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": names})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), scope, r.URL.Query().Get("group"))
	if err != nil {
		h.respondErr(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

type createAccountRequest struct {
	Group string `json:"group"`
	Name  string `json:"name"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payload")
		return
	}
	created, err := h.service.CreateAccount(r.Context(), scope, AccountRef{Group: req.Group, Name: req.Name}, rbac.UserIDFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"accounts": created})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	ref := AccountRef{Group: r.URL.Query().Get("group"), Name: r.URL.Query().Get("account")}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}
	balance, err := h.service.BalanceAsOf(r.Context(), scope, ref, date)
	if err != nil {
		h.respondErr(w, "balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"group":   ref.Group,
		"account": ref.Name,
		"date":    date.Format(time.DateOnly),
		"balance": balance,
	})
}

type postTransactionRequest struct {
	Group  string  `json:"group"`
	Name   string  `json:"account"`
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
	Memo   string  `json:"memo"`
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	var req postTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payload")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}
	snap, err := h.service.PostTransaction(r.Context(), scope, PostingInput{
		Account: AccountRef{Group: req.Group, Name: req.Name},
		Date:    date,
		Amount:  req.Amount,
		Memo:    req.Memo,
		ActorID: rbac.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.respondErr(w, "post transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"date":               snap.Date.Format(time.DateOnly),
		"daily_change":       snap.DailyChange,
		"cumulative_balance": snap.CumulativeBalance,
		"version":            snap.Version,
	})
}

func (h *Handler) incomeExpenditure(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid society id")
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}
	report, err := h.service.IncomeExpenditure(r.Context(), scope, date)
	if err != nil {
		h.respondErr(w, "income expenditure", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrScopeRequired):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrGroupNotFound), errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAccountExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrBalanceConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "a concurrent posting updated this balance, retry")
	case errors.Is(err, ErrBackdatedPosting), errors.Is(err, ErrAmountZero):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}
