package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	// PublisherFactory overrides topic lookup on PubSub; tests inject fakes here.
	PublisherFactory func(topic string) publisher
	DLQRepository    dlqRepository
	Metrics          *metrics.Marketplace
}

func (p ServiceParams) validate() error {
	var errs []error
	for name, missing := range map[string]bool{
		"config":            p.Config == nil,
		"logger":            p.Logger == nil,
		"database client":   p.DB == nil,
		"pubsub client":     p.PubSub == nil,
		"outbox repository": p.Repository == nil,
		"event registry":    p.Registry == nil,
		"dlq repository":    p.DLQRepository == nil,
	} {
		if missing {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	return errors.Join(errs...)
}

// Service drains committed outbox rows to Pub/Sub. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several publishers can run
// side by side without double delivery of a claimed row.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	dlq         dlqRepository
	registry    registryResolver
	publisherOf func(topic string) publisher
	metrics     *metrics.Marketplace

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		logg:         p.Logger,
		db:           p.DB,
		pubsub:       p.PubSub,
		repo:         p.Repository,
		dlq:          p.DLQRepository,
		registry:     p.Registry,
		publisherOf:  p.PublisherFactory,
		metrics:      p.Metrics,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
	}
	if s.publisherOf == nil {
		s.publisherOf = func(topic string) publisher {
			if pub := p.PubSub.Publisher(topic); pub != nil {
				return gcpPublisher{pub}
			}
			return nil
		}
	}
	cfg := p.Config.Outbox
	if cfg.BatchSize > 0 {
		s.batchSize = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		s.maxAttempts = cfg.MaxAttempts
	}
	if cfg.PollIntervalMS > 0 {
		s.pollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return s, nil
}

// errorBackoff grows from the poll interval up to maxBackoff with jitter.
func (s *Service) errorBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithJitter(jitterWindow, b)
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// another; an empty one waits a poll interval; a failed one backs off.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := s.errorBackoff()
	for {
		settled, err := s.drain(ctx)
		if ctx.Err() != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		}

		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait, _ = backoff.Next()
		case settled == 0:
			backoff = s.errorBackoff()
			wait = s.pollInterval
		default:
			backoff = s.errorBackoff()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// drain claims one batch and settles every row in it, returning how many rows
// it handled. Any bookkeeping failure rolls the whole batch back.
func (s *Service) drain(ctx context.Context) (int, error) {
	settled := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		for _, event := range events {
			if err := s.settle(ctx, tx, event); err != nil {
				return err
			}
			settled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return settled, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
