package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"go-creator-hub/internal/config"
	"go-creator-hub/internal/devserver"
	"go-creator-hub/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel, isatty.IsTerminal(os.Stdout.Fd()))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := devserver.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}

	if err := server.Run(ctx); err != nil {
		log.Error("server run failed", "error", err)
		os.Exit(1)
	}
}
