package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrflow/internal/domain/audit"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/settlement"
	"hrflow/internal/domain/timesheet"
	"hrflow/internal/domain/workflow"
	"hrflow/internal/platform/config"
	"hrflow/internal/platform/crypto"
	"hrflow/internal/platform/db"
	"hrflow/internal/platform/jobs"
	"hrflow/internal/platform/metrics"
	audithandler "hrflow/internal/transport/http/handlers/audit"
	healthhandler "hrflow/internal/transport/http/handlers/health"
	jobshandler "hrflow/internal/transport/http/handlers/jobs"
	timesheethandler "hrflow/internal/transport/http/handlers/timesheet"
	workflowhandler "hrflow/internal/transport/http/handlers/workflow"
	"hrflow/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector
}

// Build wires stores, services and routes on top of an open pool.
func Build(cfg config.Config, pool *pgxpool.Pool) (*App, error) {
	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, err
	}
	signer, err := workflow.NewSigner(cfg.SignatureKey, sealer)
	if err != nil {
		return nil, err
	}
	collector := metrics.New()

	workflowSvc := workflow.NewService(
		workflow.NewStore(pool),
		workflow.NewDirectoryResolver(pool),
		signer,
		workflow.WithRecorder(collector),
	)
	timesheetSvc := timesheet.NewService(timesheet.NewStore(pool), timesheet.WithRecorder(collector))
	settlementSvc := settlement.NewService(
		settlement.NewStore(pool),
		settlement.WithRecorder(collector),
		settlement.WithMaxAttempts(cfg.SettlementMaxAttempts),
		settlement.WithRetryDelay(cfg.SettlementRetryDelay),
	)
	jobsSvc := jobs.New(pool, cfg, settlementSvc, workflowSvc, jobs.WithRecorder(collector))
	auditSvc := audit.New(pool)
	perms := auth.NewStore(pool)
	keys := middleware.NewIdempotencyStore(pool)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.Logger)
	router.Use(middleware.Metrics(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

	healthhandler.NewHandler(pool).RegisterRoutes(router)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", collector.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		workflowhandler.NewHandler(workflowSvc, perms, auditSvc, keys).RegisterRoutes(r)
		(&timesheethandler.Handler{
			Approvals:   timesheetSvc,
			Settlements: settlementSvc,
			Jobs:        jobsSvc,
			Perms:       perms,
			Audit:       auditSvc,
			Idempotency: keys,
		}).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc, perms).RegisterRoutes(r)
		jobshandler.NewHandler(jobsSvc, perms).RegisterRoutes(r)
	})

	return &App{
		Config:  cfg,
		DB:      pool,
		Router:  router,
		Jobs:    jobsSvc,
		Metrics: collector,
	}, nil
}

// Run connects, migrates, seeds role permissions and serves until ctx is
// cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, os.DirFS(cfg.MigrationsDir)); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if err := auth.NewStore(pool).SyncDefaults(ctx); err != nil {
		return fmt.Errorf("sync role permissions: %w", err)
	}

	app, err := Build(cfg, pool)
	if err != nil {
		return err
	}
	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("hrflow server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
