package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mailsync_worker/config"
	"mailsync_worker/internal/bootstrap"
	"mailsync_worker/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "mailsync-worker",
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	runAPI, runWorker := false, false
	switch *mode {
	case "api":
		runAPI = true
	case "worker":
		runWorker = true
	case "all":
		runAPI, runWorker = true, true
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	var w *bootstrap.Worker
	if runWorker {
		w, err = bootstrap.NewWorker(cfg, deps)
		if err != nil {
			logger.Fatal("Failed to initialize worker: %v", err)
		}
		if err := w.Start(); err != nil {
			logger.Fatal("Failed to start worker: %v", err)
		}
		logger.Info("Worker started (concurrency: %d)", cfg.WorkerConcurrency)
	}

	serverErr := make(chan error, 1)
	if runAPI {
		app := bootstrap.NewAPI(cfg, deps, w)
		go func() {
			logger.Info("Starting API server on :%s", cfg.Port)
			serverErr <- app.Listen(":" + cfg.Port)
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.ShutdownWithContext(ctx); err != nil {
				logger.Error("API shutdown error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received %s, shutting down (timeout: %v)...", sig, shutdownTimeout)
	case err := <-serverErr:
		if err != nil {
			logger.Error("API server error: %v", err)
		}
	}

	if w != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := w.Stop(ctx); err != nil {
			logger.Error("Worker shutdown error: %v", err)
		}
		cancel()
		m := w.GetMetrics()
		logger.Info("Worker stopped (completed: %d, failed: %d)", m.JobsCompleted, m.JobsFailed)
	}
}
