package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/agonauth/internal/logger"
)

func main() {
	if err := run(context.Background(), os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("can't run app, sorry", "error", err.Error())
		os.Exit(1)
	}
}

// Load config from '.env', environment and args (latter wins), then serve until ctx is done or signal received
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env file. Err: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return fmt.Errorf("error while loading environment. Err: %w", err)
	}
	if err := c.ParseFlags(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config. Err: %w", err)
	}

	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return fmt.Errorf("error while initializing logger: %w", err)
	}

	// Initialize context that cancelled on SIGTERM
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServerApp(ctx, c, logger)
	if err != nil {
		return fmt.Errorf("can't initialize app. Err: %w", err)
	}

	return srv.Run(ctx)
}
