// Package main provides the entry point for the study progress worker service.
// The worker recalibrates item difficulty and sweeps stale sessions on a schedule.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyprogress/internal/config"
	"studyprogress/internal/di"
	"studyprogress/internal/handlers"
	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"
	"studyprogress/internal/worker"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, handlers.WorkerServiceName)
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(shutdownCtx, tp, mp); err != nil {
			logger.Warn(ctx, "Error shutting down telemetry providers", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.Info(ctx, "Starting study progress worker", map[string]interface{}{
		"port":     cfg.Server.WorkerPort,
		"logLevel": cfg.Server.LogLevel,
		"debug":    cfg.Server.Debug,
	})

	// The worker never holds live sessions, so it skips Redis and the in-memory services
	container := di.NewServiceContainer(cfg, logger)
	if err := container.InitializeStorage(ctx); err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize storage", err, nil)
	}
	defer func() {
		if err := container.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "Warning: failed to shut down container", map[string]interface{}{"error": err.Error()})
		}
	}()

	progressStore, err := container.GetProgressStore()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get progress store", err, nil)
	}
	difficultyService, err := container.GetDifficultyService()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get difficulty service", err, nil)
	}

	hostname, _ := os.Hostname()
	workerInstance := worker.NewWorker(progressStore, difficultyService, cfg, contextutils.SystemClock{}, hostname, logger)
	if err := workerInstance.Startup(ctx); err != nil {
		fatalIfErr(ctx, logger, "Failed to start worker", err, nil)
	}

	router := handlers.NewWorkerRouter(cfg, workerInstance, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.WorkerPort,
		Handler:           otelhttp.NewHandler(router, handlers.WorkerServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Worker server starting", map[string]interface{}{"port": cfg.Server.WorkerPort})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalIfErr(ctx, logger, "Failed to start worker server", err, map[string]interface{}{"port": cfg.Server.WorkerPort})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Worker server shutting down", map[string]interface{}{"service": "worker"})

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, config.WorkerShutdownTimeout)
	defer shutdownCancel()

	// Stop scheduling before the database goes away
	if err := workerInstance.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "Warning: failed to shutdown worker", map[string]interface{}{"error": err.Error(), "service": "worker"})
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Worker server forced to shutdown", err, map[string]interface{}{"service": "worker"})
	}

	logger.Info(ctx, "Worker server exited", map[string]interface{}{"service": "worker"})
}
