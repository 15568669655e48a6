package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nkiryanov/venuewallet/internal/db"
	"github.com/nkiryanov/venuewallet/internal/directory"
	"github.com/nkiryanov/venuewallet/internal/handlers"
	"github.com/nkiryanov/venuewallet/internal/identity"
	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/metrics"
	"github.com/nkiryanov/venuewallet/internal/notify"
	"github.com/nkiryanov/venuewallet/internal/repository/postgres"
	"github.com/nkiryanov/venuewallet/internal/service/catalog"
	"github.com/nkiryanov/venuewallet/internal/service/wallet"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger     logger.Logger
	pool       *pgxpool.Pool
	dispatcher *notify.Dispatcher
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel, logger.WithFile(c.LogFile))
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	identityProvider, err := identity.New(identity.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating identity provider: %w", err)
	}

	dir, err := directory.Load(c.DirectoryFile)
	if err != nil {
		return nil, fmt.Errorf("error while loading merchant directory: %w", err)
	}
	rewards, err := catalog.LoadRewards(c.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("error while loading reward catalog: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, db.PoolConfig{DSN: c.DatabaseDSN, LockTimeout: c.LockTimeout})
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	app := &ServerApp{
		ListenAddr: c.ListenAddr,
		logger:     logger,
		pool:       pool,
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if c.NotifyWebhookURL != "" {
		app.dispatcher = notify.NewDispatcher(
			notify.NewClient(c.NotifyWebhookURL, logger),
			logger,
			notify.WithMetrics(m),
		)
		notifier = app.dispatcher
	}

	storage := postgres.NewStorage(pool, postgres.WithLockTimeout(c.LockTimeout))
	walletService := wallet.NewService(storage, dir, c.Currency,
		wallet.WithLogger(logger),
		wallet.WithNotifier(notifier),
		wallet.WithMetrics(m),
		wallet.WithLockWait(c.LockTimeout),
	)

	if err := walletService.SyncCatalog(ctx, rewards); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while syncing reward catalog: %w", err)
	}
	logger.Info("Reward catalog synced", "rewards", len(rewards), "merchants", len(dir.Merchants()))

	app.Handler = handlers.NewRouter(
		walletService,
		identityProvider,
		m,
		metrics.Handler(registry),
		logger,
	)

	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Notifications are delivered until the server is fully stopped
	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	defer notifyCancel()
	var notifyStopped <-chan struct{}
	if s.dispatcher != nil {
		notifyStopped = s.dispatcher.Run(notifyCtx)
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	notifyCancel()
	if s.dispatcher != nil {
		<-notifyStopped
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
