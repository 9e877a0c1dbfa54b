package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/farmolink/farmolink-backend/pkg/logger"
)

const defaultHealthInterval = 30 * time.Second

type consumer interface {
	Run(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Logger         *logger.Logger
	Consumer       consumer
	Dependencies   map[string]pinger
	HealthInterval time.Duration
}

// Service runs the notification consumer next to a dependency health loop.
// The first runner to fail stops the other.
type Service struct {
	logg           *logger.Logger
	consumer       consumer
	deps           map[string]pinger
	healthInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	interval := params.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &Service{
		logg:           params.Logger,
		consumer:       params.Consumer,
		deps:           params.Dependencies,
		healthInterval: interval,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.consumer.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("notification consumer: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return s.watchHealth(groupCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// watchHealth logs dependency outages. It never stops the worker; the
// consumer surfaces hard failures itself.
func (s *Service) watchHealth(ctx context.Context) error {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for name, dep := range s.deps {
				if err := dep.Ping(ctx); err != nil && ctx.Err() == nil {
					s.logg.Error(s.logg.WithField(ctx, "dependency", name), "worker dependency unhealthy", err)
				}
			}
		}
	}
}
