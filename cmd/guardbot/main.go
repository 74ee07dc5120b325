package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"guardbot/common/logging"
	"guardbot/internal/guard/app"
	"guardbot/internal/guard/settings"
)

func main() {
	// A missing .env is fine; real deployments configure the environment
	// directly.
	if err := godotenv.Load(); err == nil {
		fmt.Println("loaded configuration from .env")
	}

	cfg, err := settings.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer daemon.Close()

	if err := daemon.Run(ctx); err != nil {
		slog.Error("daemon exited with error", "err", err)
		os.Exit(1)
	}
}
