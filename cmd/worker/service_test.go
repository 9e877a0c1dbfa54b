package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type fakeConsumer struct {
	err error
}

func (f fakeConsumer) Run(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestRunStopsOnConsumerFailure(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger:         logger.Nop(),
		Consumer:       fakeConsumer{err: errors.New("subscription gone")},
		Dependencies:   map[string]pinger{"redis": fakePinger{}},
		HealthInterval: time.Millisecond,
	})
	require.NoError(t, err)

	err = service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription gone")
}

func TestRunReturnsOnCancel(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger:         logger.Nop(),
		Consumer:       fakeConsumer{},
		HealthInterval: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, service.Run(ctx), context.DeadlineExceeded)
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger:       logger.Nop(),
		Consumer:     fakeConsumer{},
		Dependencies: map[string]pinger{"pubsub": fakePinger{err: errors.New("unreachable")}},
	})
	require.NoError(t, err)

	err = service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub ping failed")
}
