// Package server wires the users service together: storage, password
// hashing, the broker connection, the cascade client and the queue router.
// It runs until SIGINT/SIGTERM and then shuts the router down.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/broker"
	"github.com/dmitrijs2005/usersvc/internal/cryptox"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/dmitrijs2005/usersvc/internal/metrics"
	"github.com/dmitrijs2005/usersvc/internal/retryx"
	"github.com/dmitrijs2005/usersvc/internal/server/cascade"
	"github.com/dmitrijs2005/usersvc/internal/server/config"
	"github.com/dmitrijs2005/usersvc/internal/server/router"
	"github.com/dmitrijs2005/usersvc/internal/server/shared/db"
	"github.com/dmitrijs2005/usersvc/internal/server/users"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    db.RepositoryManager
	router   *router.Router
	registry *prometheus.Registry
}

// NewApp opens storage and the broker and builds the router. Nothing is
// consumed until Run.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	params := cryptox.DefaultArgon2Params()
	params.Memory = c.Argon2Memory
	params.Time = c.Argon2Time
	params.Threads = c.Argon2Threads

	hasher, err := cryptox.NewHasher([]byte(c.Pepper), params)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	repos, err := openStorage(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	reg := metrics.NewRegistry()

	conn, err := broker.NewRedisConnection(c.BrokerURL, logger)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("broker init error: %w", err)
	}
	conn.Instrument(metrics.NewBrokerMetrics(reg))

	if err := retryx.Probe(ctx, retryx.DefaultPolicy(), logger, "broker", conn.Ping); err != nil {
		_ = conn.Close()
		_ = repos.Close()
		return nil, err
	}

	return newApp(c, logger, repos, conn, reg, hasher), nil
}

func newApp(c *config.Config, logger logging.Logger, repos db.RepositoryManager, conn broker.Connection, reg *prometheus.Registry, hasher users.Hasher) *App {
	deps := cascade.NewClient(conn, c.CascadeQueue, c.CascadeTimeout, logger, metrics.NewCascadeMetrics(reg))
	svc := users.NewService(repos.Users(), hasher, deps, logger)
	r := router.New(conn, svc, logger, metrics.NewHandlerMetrics(reg), c.ConsumerConcurrency)

	return &App{config: c, logger: logger, repos: repos, router: r, registry: reg}
}

func openStorage(ctx context.Context, c *config.Config, logger logging.Logger) (db.RepositoryManager, error) {
	switch c.StorageBackend {
	case config.BackendMemory:
		logger.Warn(ctx, "using in-memory storage, data will not survive a restart")
		return db.NewInMemoryRepositoryManager(), nil
	case config.BackendPostgres:
		return db.NewPostgresRepositoryManager(ctx, c.DatabaseDSN, retryx.DefaultPolicy(), logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the router and blocks until ctx is cancelled or a shutdown
// signal arrives, then stops the router and closes storage.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	if err := app.router.Start(ctx); err != nil {
		err = fmt.Errorf("router start error: %w", err)
		if serr := app.shutdown(&wg); serr != nil {
			err = errors.Join(err, serr)
		}
		return err
	}

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, app.config.MetricsAddr, app.registry, app.logger); err != nil {
				app.logger.Error(ctx, "metrics listener failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	app.logger.Info(context.Background(), "Shutting down...")

	return app.shutdown(&wg)
}

func (app *App) shutdown(wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := app.router.Stop(ctx)
	if cerr := app.repos.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close storage: %w", cerr))
	}
	wg.Wait()

	if err != nil {
		app.logger.Error(ctx, "shutdown finished with errors", "error", err)
		return err
	}
	app.logger.Info(ctx, "Shutdown complete")
	return nil
}
