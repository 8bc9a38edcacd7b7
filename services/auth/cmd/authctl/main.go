package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/TrainingPlatform/pkg/authclient"
	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/logger"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", describe(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}

	log := logger.NewWithWriter("authctl", cfg.LogLevel, os.Stderr)
	session, err := authclient.New(cfg.ClientConfig(), cfg.TokenStore(), log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return cli.NewApp(session, os.Stdin, os.Stdout).Run(ctx, os.Args[1:])
}

// describe prefers the server's message over the wrapped error chain.
func describe(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
