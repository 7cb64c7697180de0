package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/rag-query-rewriter/internal/adapters/mcp"
	"github.com/kirillkom/rag-query-rewriter/internal/bootstrap"
	"github.com/kirillkom/rag-query-rewriter/internal/config"
	"github.com/kirillkom/rag-query-rewriter/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	// stdout carries protocol frames.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "mcp", Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Rewriter, logger)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error("mcp_serve_failed", "error", err)
	}
}
