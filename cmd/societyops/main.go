package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/societyops/societyops/internal/app"
	"github.com/societyops/societyops/internal/auth"
	"github.com/societyops/societyops/internal/billing"
	"github.com/societyops/societyops/internal/complaints"
	"github.com/societyops/societyops/internal/gatepass"
	"github.com/societyops/societyops/internal/ledger"
	"github.com/societyops/societyops/internal/observability"
	"github.com/societyops/societyops/internal/platform/cache"
	"github.com/societyops/societyops/internal/platform/db"
	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/reportcache"
	"github.com/societyops/societyops/internal/shared"
	"github.com/societyops/societyops/internal/society"
	"github.com/societyops/societyops/jobs"
)

type joinCodeResolver struct {
	societies *society.Service
}

func (r joinCodeResolver) ResolveJoinCode(ctx context.Context, code string) (int64, error) {
	soc, err := r.societies.GetByJoinCode(ctx, code)
	if err != nil {
		return 0, err
	}
	return soc.ID, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTLifetime)
	authenticator := auth.NewAuthenticator(tokens)

	reports := reportcache.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reports.ListenForInvalidation(ctx); err != nil {
		logger.Warn("report cache invalidation listener", slog.Any("error", err))
	}

	societyService := society.NewService(society.NewRepository(pool), idemStore, auditLogger, reports, logger)
	societyHandler := society.NewHandler(logger, societyService, rbacMiddleware)

	authService := auth.NewService(auth.NewRepository(pool), tokens, joinCodeResolver{societies: societyService}, logger)
	authHandler := auth.NewHandler(logger, authService, authenticator)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, reports)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, rbacMiddleware)

	billingService := billing.NewService(billing.NewRepository(pool), auditLogger, reports)
	billingHandler := billing.NewHandler(logger, billingService, rbacMiddleware)

	gatepassService := gatepass.NewService(gatepass.NewRepository(pool), auditLogger)
	gatepassHandler := gatepass.NewHandler(logger, gatepassService, rbacMiddleware)

	complaintsService := complaints.NewService(complaints.NewRepository(pool), auditLogger, reports)
	complaintsHandler := complaints.NewHandler(logger, complaintsService, rbacMiddleware)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Warn("jobs client unavailable", slog.Any("error", err))
	}
	defer func() {
		if jobsClient != nil {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}
	}()
	jobHandler := jobs.NewHandler(jobsClient, asynq.NewInspector(redisOpts), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Authenticator:     authenticator,
		RBACMiddleware:    rbacMiddleware,
		AuthHandler:       authHandler,
		SocietyHandler:    societyHandler,
		LedgerHandler:     ledgerHandler,
		BillingHandler:    billingHandler,
		GatepassHandler:   gatepassHandler,
		ComplaintsHandler: complaintsHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
