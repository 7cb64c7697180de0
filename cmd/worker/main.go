package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/rag-query-rewriter/internal/adapters/worker"
	"github.com/kirillkom/rag-query-rewriter/internal/bootstrap"
	"github.com/kirillkom/rag-query-rewriter/internal/config"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rag-query-rewriter/internal/observability/logging"
	"github.com/kirillkom/rag-query-rewriter/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    "worker",
		Logger:     logger,
		Registerer: workerMetrics.Registry(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	broker, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:     cfg.NATSQueueGroup,
		Concurrency:    cfg.WorkerConcurrency,
		HandlerTimeout: cfg.RequestTimeout(),
		Logger:         logger,
	})
	if err != nil {
		logger.Error("broker_connect_failed", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	handler := worker.NewHandler(app.Rewriter, workerMetrics, logger, "worker")
	if err := broker.Serve(ctx, handler.Handle); err != nil {
		logger.Error("worker_serve_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
