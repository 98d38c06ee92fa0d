package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"BarLake/internal/handler/api"
	"BarLake/internal/service/ratelimit"
	"BarLake/internal/usecase"
	"BarLake/pkg/cache"
	pkgch "BarLake/pkg/clickhouse"
	"BarLake/pkg/config"
	xhttp "BarLake/pkg/http"
	pkgkafka "BarLake/pkg/kafka"
	applogger "BarLake/pkg/logger"
	"BarLake/pkg/metrics"
	"BarLake/pkg/postgresql"
	"BarLake/pkg/queue"
)

// Deps are the components App starts and stops. Optional ones are nil
// when disabled in config.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Metrics   *metrics.Recorder
	Handler   *api.BarsEchoHandler
	Postgres  *postgresql.Client
	Cache     cache.Service
	CH        *pkgch.Client
	Producer  *pkgkafka.Producer
	Consumer  *pkgkafka.Consumer
	Batches   *usecase.KafkaBatchHandler
	Queue     *queue.RedisQueue
	RepairJob *usecase.RepairJob
	Scheduler *usecase.RepairScheduler
	Limiter   *ratelimit.Limiter
}

// App encapsulates the entire application lifecycle.
type App struct {
	deps       Deps
	logger     *applogger.Logger
	httpServer *xhttp.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(deps Deps) *App {
	return &App{deps: deps, logger: deps.Logger}
}

// Start launches every background component and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	cfg := a.deps.Config
	ctx, a.cancel = context.WithCancel(ctx)

	if a.deps.Queue != nil {
		a.deps.Queue.RegisterJobs(a.deps.RepairJob)
		if err := a.deps.Queue.Start(); err != nil {
			return err
		}
	}

	if a.deps.Consumer != nil && a.deps.Batches != nil {
		a.deps.Consumer.RegisterHandler(a.deps.Batches)
		if err := a.deps.Consumer.Start(ctx); err != nil {
			return err
		}
	}

	if a.deps.Scheduler.Enabled() {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.deps.Scheduler.Run(ctx)
		}()
	}

	if a.deps.Limiter != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.pruneLimiter(ctx)
		}()
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.MaxUploadBytes),
		xhttp.WithCORS(cfg.Server.CORSOrigins),
	}
	if a.deps.Metrics != nil {
		opts = append(opts, xhttp.WithMetrics(cfg.Server.MetricsPath, a.deps.Metrics.Handler(), a.deps.Metrics))
	}
	a.httpServer = xhttp.NewServer(a.deps.Handler, a.logger, opts...)
	return a.httpServer.Start()
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		a.logger.Error("app start failed", applogger.Error(err))
		_ = a.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), a.deps.Config.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(ctx)
}

func (a *App) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.deps.Limiter.Prune(5 * time.Minute)
		}
	}
}

// Shutdown stops intake first, then workers, then closes the clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.deps.Consumer != nil {
		if err := a.deps.Consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.deps.Queue != nil {
		if err := a.deps.Queue.Stop(ctx); err != nil {
			a.logger.Warn("queue stop error", applogger.Error(err))
		}
	}

	// Flush aggregated logs while the producer is still open.
	a.logger.RemoveCollector()

	if a.deps.Producer != nil {
		if err := a.deps.Producer.Close(); err != nil {
			a.logger.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.deps.CH != nil {
		if err := a.deps.CH.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.deps.Cache != nil {
		if err := a.deps.Cache.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.deps.Postgres != nil {
		a.deps.Postgres.Close()
	}

	a.logger.Info("shutdown complete")
	return nil
}
