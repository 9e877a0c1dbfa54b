package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
)

// Client owns the shared GORM handle and replays transactions that hit
// transient failures.
type Client struct {
	gdb       *gorm.DB
	logg      *logger.Logger
	attempts  uint64
	baseDelay time.Duration
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the pool described by cfg. Postgres is the default driver;
// sqlite serves local tooling.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database DSN is required")
	}
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dial.Name(), err)
	}
	pool, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	tunePool(pool, cfg)

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         dial.Name(),
			"max_open_conns": cfg.MaxOpenConns,
		}), "database pool ready")
	}

	client := NewFromGorm(gdb, logg)
	client.configureRetry(cfg.RetryMaxAttempts, cfg.RetryBaseDelay)
	return client, nil
}

func dialector(cfg config.DBConfig) (gorm.Dialector, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", DriverPostgres:
		// Simple protocol keeps us compatible with transaction-mode poolers.
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	case DriverSQLite:
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewFromGorm wraps an already open handle; tests and tooling use it.
func NewFromGorm(gdb *gorm.DB, logg *logger.Logger) *Client {
	return &Client{
		gdb:       gdb,
		logg:      logg,
		attempts:  defaultRetryAttempts,
		baseDelay: defaultRetryBaseDelay,
	}
}

func (c *Client) configureRetry(attempts int, base time.Duration) {
	if attempts > 0 {
		c.attempts = uint64(attempts)
	}
	if base > 0 {
		c.baseDelay = base
	}
}

func tunePool(pool *sql.DB, cfg config.DBConfig) {
	if n := cfg.MaxOpenConns; n > 0 {
		pool.SetMaxOpenConns(n)
	}
	if n := cfg.MaxIdleConns; n > 0 {
		pool.SetMaxIdleConns(n)
	}
	if d := cfg.ConnMaxLifetime; d > 0 {
		pool.SetConnMaxLifetime(d)
	}
	if d := cfg.ConnMaxIdleTime; d > 0 {
		pool.SetConnMaxIdleTime(d)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.gdb
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.gdb.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.gdb.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. A transient failure replays the whole
// transaction, so fn must keep its side effects inside tx.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := retry.WithMaxRetries(c.retries(), retry.WithJitterPercent(20, retry.NewExponential(c.baseDelay)))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.gdb.WithContext(ctx).Transaction(fn)
		if err == nil || !IsTransient(err) {
			return err
		}
		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			}), "db.tx_retry")
		}
		return retry.RetryableError(err)
	})
}

func (c *Client) retries() uint64 {
	if c.attempts <= 1 {
		return 0
	}
	return c.attempts - 1
}
