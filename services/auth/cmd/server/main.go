package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	pkgconfig "github.com/utafrali/TrainingPlatform/pkg/config"
	"github.com/utafrali/TrainingPlatform/pkg/logger"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/app"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; real environment variables win.
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize structured logger.
	log := logger.New("auth-service", cfg.LogLevel)
	log.Info("starting auth service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("refresh_registry", cfg.RefreshRegistry),
	)

	// Create the application with all dependencies wired.
	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run the application. This blocks until shutdown.
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("run application: %w", err)
	}

	log.Info("auth service stopped")
	return nil
}
