package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maltedev/shopee-price-tracker/internal/api"
	"github.com/maltedev/shopee-price-tracker/internal/app"
	"github.com/maltedev/shopee-price-tracker/internal/config"
	"github.com/maltedev/shopee-price-tracker/internal/logging"
	"github.com/maltedev/shopee-price-tracker/internal/queue"
	"github.com/maltedev/shopee-price-tracker/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.StartRelay(ctx); err != nil {
		logger.Error("failed to start outbox relay", "error", err)
		os.Exit(1)
	}

	tasks := queue.NewInMemoryQueue()
	worker := tracker.NewWorker(a.Tracker, queue.NewBatchQueue(tasks, cfg.Queue.BatchSize), a.Metrics, cfg.Queue.MaxRetries, logger)
	go func() {
		if err := worker.Start(ctx); err != nil {
			logger.Error("worker stopped with error", "error", err)
		}
	}()

	if len(cfg.Tracker.ProductURLs) > 0 {
		go func() { _ = a.Tracker.RunScheduler(ctx, cfg.Tracker.CheckInterval) }()
	}

	// Interfaces must stay nil, not typed nil, when a component is disabled.
	var records api.RecordReader
	switch {
	case a.Journal != nil:
		records = a.Journal
	case a.Sheets != nil:
		records = a.Sheets
	}
	var backlog api.OutboxBacklog
	if a.Relay != nil {
		backlog = a.Relay
	}
	handlers := api.NewHandlers(a.Tracker, worker, records, backlog, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handlers.Routes(r)
	r.Handle("/metrics", a.Metrics.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()
		_ = tasks.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "sinks", a.Sinks.Len())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
