package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/clipreview-backend/internal/config"
	"github.com/yungbote/clipreview-backend/internal/data/db"
	"github.com/yungbote/clipreview-backend/internal/data/repos/reviews"
	httpapi "github.com/yungbote/clipreview-backend/internal/http"
	httpH "github.com/yungbote/clipreview-backend/internal/http/handlers"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/dbctx"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
	"github.com/yungbote/clipreview-backend/internal/platform/observability"
	"github.com/yungbote/clipreview-backend/internal/realtime"
	"github.com/yungbote/clipreview-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	DB       *db.Service
	Clients  Clients
	Pipeline *pipeline.Orchestrator
	Reviews  services.ReviewService
	Hub      *realtime.Hub
	Server   *httpapi.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Version:     cfg.Version,
		Telemetry:   cfg.Telemetry,
	})

	clients, err := wireClients(ctx, log, cfg, true)
	if err != nil {
		log.Sync()
		return nil, err
	}

	database, err := db.Open(log, cfg.Database)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}

	orch, err := wirePipeline(log, cfg, clients)
	if err != nil {
		clients.Close()
		_ = database.Close()
		log.Sync()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	repo := reviews.NewReviewRunRepo(database.DB(), log)
	reviewService := services.NewReviewService(log, repo, orch, clients.Bus, services.ReviewServiceConfig{
		RunTimeout:        cfg.Pipeline.RunTimeout.Duration,
		MaxConcurrentRuns: cfg.Pipeline.MaxConcurrentRuns,
	})
	hub := realtime.NewHub(log)

	server := httpapi.NewServer(cfg.HTTP.Addr, cfg.HTTP.ReadHeaderTimeout.Duration, httpapi.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		HealthHandler:   httpH.NewHealthHandler(reviewService),
		ReviewHandler:   httpH.NewReviewHandler(reviewService, hub),
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           database,
		Clients:      clients,
		Pipeline:     orch,
		Reviews:      reviewService,
		Hub:          hub,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is done, then drains in-flight runs.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}

	if err := a.Reviews.RecoverInterrupted(dbctx.New(ctx)); err != nil {
		a.Log.Warn("recover interrupted review runs failed", "error", err)
	}
	if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start stage event forwarder: %w", err)
	}
	go sweepStaging(ctx, a.Log, a.Clients.GcpStager, a.Cfg.GCP.StagingMaxAge.Duration)

	// Warm the readiness check.
	go func() {
		if err := a.Pipeline.Readiness().Ensure(ctx); err != nil {
			a.Log.Warn("media tools not ready", "error", err)
		}
	}()

	a.Log.Info("HTTP server listening", "addr", a.Server.Addr())
	err := a.Server.Run(ctx, a.Cfg.HTTP.ShutdownTimeout.Duration)

	drainCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.HTTP.ShutdownTimeout.Duration)
	defer cancel()
	if sErr := a.Reviews.Shutdown(drainCtx); sErr != nil {
		a.Log.Warn("review runs did not drain before shutdown", "error", sErr)
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// Runner is the database-free wiring used by the one-shot CLI.
type Runner struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Clients  Clients
	Pipeline *pipeline.Orchestrator
}

func NewRunner(ctx context.Context) (*Runner, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	clients, err := wireClients(ctx, log, cfg, false)
	if err != nil {
		log.Sync()
		return nil, err
	}
	orch, err := wirePipeline(log, cfg, clients)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return &Runner{Log: log, Cfg: cfg, Clients: clients, Pipeline: orch}, nil
}

func (r *Runner) Close() {
	if r == nil {
		return
	}
	r.Clients.Close()
	if r.Log != nil {
		r.Log.Sync()
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.NewWithOptions(logger.Options{
		Mode:     cfg.Env,
		Level:    cfg.Log.Level,
		NoRedact: cfg.Log.NoRedact,
		HashSalt: cfg.Log.HashSalt,
	})
}
