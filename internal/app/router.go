package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/societyops/societyops/internal/auth"
	"github.com/societyops/societyops/internal/billing"
	"github.com/societyops/societyops/internal/complaints"
	"github.com/societyops/societyops/internal/gatepass"
	"github.com/societyops/societyops/internal/ledger"
	"github.com/societyops/societyops/internal/observability"
	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/society"
	"github.com/societyops/societyops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Authenticator     *auth.Authenticator
	RBACMiddleware    rbac.Middleware
	AuthHandler       *auth.Handler
	SocietyHandler    *society.Handler
	LedgerHandler     *ledger.Handler
	BillingHandler    *billing.Handler
	GatepassHandler   *gatepass.Handler
	ComplaintsHandler *complaints.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the shared middleware chain and
// mounts every module under its society scope.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.Authenticator.Require)

		r.Route("/societies", func(r chi.Router) {
			params.SocietyHandler.MountRoutes(r)

			r.Route("/{societyID}", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireSocietyScope)
				params.SocietyHandler.MountScopedRoutes(r)
				r.Route("/ledger", params.LedgerHandler.MountRoutes)
				r.Route("/billing", params.BillingHandler.MountRoutes)
				r.Route("/gatepasses", params.GatepassHandler.MountRoutes)
				r.Route("/complaints", params.ComplaintsHandler.MountRoutes)
			})
		})

		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAll("jobs.manage"))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
