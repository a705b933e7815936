package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hrflow/internal/app/server"
	"hrflow/internal/platform/config"
	"hrflow/internal/platform/logging"
)

func main() {
	cfg := config.Load()
	logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
