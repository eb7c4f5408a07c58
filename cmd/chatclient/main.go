package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"go-creator-hub/internal/app"
	"go-creator-hub/internal/config"
	"go-creator-hub/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// logs go to stderr so they do not interleave with the prompt
	log := logger.New(os.Stderr, cfg.LogLevel, isatty.IsTerminal(os.Stderr.Fd()))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize client", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	sh := newShell(application, os.Stdout)
	sh.resume(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	sh.prompt()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stdout)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if sh.exec(ctx, line) {
				return
			}
			sh.prompt()
		}
	}
}
