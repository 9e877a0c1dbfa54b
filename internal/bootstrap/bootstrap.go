// Package bootstrap holds the startup sequence shared by every binary:
// environment, config, logger, infrastructure clients and orderly shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/db"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/migrate"
	"github.com/farmolink/farmolink-backend/pkg/pubsub"
	"github.com/farmolink/farmolink-backend/pkg/redis"
	"github.com/farmolink/farmolink-backend/pkg/storage/gcs"
)

// App is one running binary and the resources it must release on exit.
type App struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New loads .env and config, then builds the leveled logger for name.
func New(name string) (*App, error) {
	logg := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = name
	return &App{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}, nil
}

// Fatal logs err and exits. Deferred closers do not run, so call Close first
// when resources are already open.
func Fatal(logg *logger.Logger, msg string, err error) {
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "farmolink"})
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}

// OnClose registers fn to run, newest first, when the app shuts down.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases every registered resource and reports all failures.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errs
}

// Database connects to the configured database and applies dev migrations.
func (a *App) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, a.Config.DB, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	a.OnClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, a.Config, a.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

// Redis connects to the configured Redis.
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, a.Config.Redis, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	a.OnClose("redis", client.Close)
	return client, nil
}

// PubSub connects to Pub/Sub and verifies the domain subscription.
func (a *App) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, a.Config.GCP, a.Config.PubSub, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	a.OnClose("pubsub", client.Close)
	return client, nil
}

// Storage connects to the prescription image bucket.
func (a *App) Storage(ctx context.Context) (*gcs.Client, error) {
	client, err := gcs.NewClient(ctx, a.Config.GCS, a.Config.GCP, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap gcs: %w", err)
	}
	a.OnClose("gcs", client.Close)
	return client, nil
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the env fields
// every log line of the binary should have.
func (a *App) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return a.Logger.WithFields(ctx, map[string]any{
		"env":         a.Config.App.Env,
		"serviceKind": a.Name,
	}), stop
}

// RunWorker runs fn next to the worker metrics endpoint. The endpoint stops
// as soon as fn returns.
func (a *App) RunWorker(ctx context.Context, gatherer prometheus.Gatherer, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	g.Go(func() error {
		return metrics.Serve(gctx, metrics.NewServer(a.Config.Metrics.Addr, gatherer), a.Logger)
	})
	return g.Wait()
}
