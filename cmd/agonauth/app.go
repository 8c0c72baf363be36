package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/agonauth/internal/db"
	"github.com/nkiryanov/agonauth/internal/handlers"
	"github.com/nkiryanov/agonauth/internal/handlers/middleware"
	"github.com/nkiryanov/agonauth/internal/logger"
	"github.com/nkiryanov/agonauth/internal/metrics"
	"github.com/nkiryanov/agonauth/internal/repository"
	"github.com/nkiryanov/agonauth/internal/repository/memory"
	"github.com/nkiryanov/agonauth/internal/repository/postgres"
	"github.com/nkiryanov/agonauth/internal/service/auth"
	"github.com/nkiryanov/agonauth/internal/service/auth/tokenmanager"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	close  func()
}

func NewServerApp(ctx context.Context, c *Config, logger logger.Logger) (*ServerApp, error) {
	storage, closeStorage, err := newStorage(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}

	tokenManager, err := tokenmanager.New(c.TokenConfig())
	if err != nil {
		closeStorage()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	registry := metrics.NewRegistry()
	flowMetrics, err := metrics.NewFlowMetrics(registry)
	if err != nil {
		closeStorage()
		return nil, fmt.Errorf("error while registering metrics. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{
		RevokeOnReuse: c.RevokeOnReuse,
		Observer:      flowMetrics,
	}, tokenManager, storage)
	if err != nil {
		closeStorage()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	mux := handlers.NewRouter(authService, logger, handlers.RouterConfig{
		Metrics:     metrics.Handler(registry),
		RateLimiter: middleware.NewRateLimiter(c.AuthRateLimit),
		CORSOrigins: c.CORSOrigins,
	})

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     logger,
		close:      closeStorage,
	}, nil
}

// Postgres if dsn set, memory otherwise
func newStorage(ctx context.Context, dsn string, logger logger.Logger) (repository.Storage, func(), error) {
	if dsn == "" {
		logger.Warn("database is not configured, users are kept in memory and lost on restart")
		return memory.NewStorage(), func() {}, nil
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	return postgres.NewStorage(pool), pool.Close, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Listen and serve until context is cancelled
	g.Go(func() error {
		s.logger.Info("starting server", "address", s.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// Close gracefully connections
	g.Go(func() error {
		<-gCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(timeoutCtx)
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
			err = httpServer.Close()
		}
		s.logger.Info("HTTP server stopped")
		return err
	})

	return g.Wait()
}
