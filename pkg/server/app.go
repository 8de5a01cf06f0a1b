package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SigWatch/internal/domain/repository"
	"SigWatch/internal/usecase"
	"SigWatch/pkg/config"
	xhttp "SigWatch/pkg/http"
	pkgkafka "SigWatch/pkg/kafka"
	applogger "SigWatch/pkg/logger"
)

// App encapsulates the engine lifecycle: the scheduler loop, the retention
// trimmer and the HTTP surface, plus orderly shutdown of the stores and
// the alert transport.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	scheduler  *usecase.Scheduler
	retention  *usecase.Retention
	handler    xhttp.Handler
	producer   *pkgkafka.Producer
	state      repository.SignalStateStore
	runlog     repository.RunLogSink
	alerts     repository.AlertPublisher
	httpServer *xhttp.Server
}

// New creates an App with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	scheduler *usecase.Scheduler,
	retention *usecase.Retention,
	handler xhttp.Handler,
	producer *pkgkafka.Producer,
	state repository.SignalStateStore,
	runlog repository.RunLogSink,
	alerts repository.AlertPublisher,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		scheduler: scheduler,
		retention: retention,
		handler:   handler,
		producer:  producer,
		state:     state,
		runlog:    runlog,
		alerts:    alerts,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Aggregate error-level logs onto Kafka when a producer exists.
	if a.producer != nil {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "sigwatch.logs",
			Publisher:      a.producer,
		})
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	go func() {
		if err := a.scheduler.Start(ctx); err != nil {
			a.log.Error("scheduler error", applogger.Error(err))
		}
	}()
	a.log.Info("scheduler started",
		applogger.Duration("tick", a.cfg.Engine.TickInterval),
		applogger.Int("workers", a.cfg.Engine.Workers))

	a.retention.Start(ctx)
	a.log.Info("retention trimmer started",
		applogger.Duration("retention", a.cfg.RunLog.Retention))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops the loops first so no new runs start, then drains the
// HTTP server and closes the stores.
func (a *App) shutdown(ctx context.Context) error {
	a.scheduler.Stop()
	a.retention.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	// Flush the log collector before its producer goes away.
	a.log.RemoveCollector()

	if err := a.alerts.Close(); err != nil {
		a.log.Warn("alert publisher close error", applogger.Error(err))
	}
	if err := a.runlog.Close(); err != nil {
		a.log.Warn("run log close error", applogger.Error(err))
	}
	if err := a.state.Close(); err != nil {
		a.log.Warn("state store close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
