package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type fakeEventPruner struct {
	cutoff      time.Time
	minAttempts int
	err         error
}

func (f *fakeEventPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	return 7, f.err
}

type fakeDeadLetterPruner struct {
	cutoff time.Time
	calls  int
}

func (f *fakeDeadLetterPruner) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 2, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newOutboxRetentionJob(t *testing.T, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	params.DB = passthroughTx{}
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionPrunesEventsAndDeadLetters(t *testing.T) {
	events := &fakeEventPruner{}
	deadLetters := &fakeDeadLetterPruner{}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{
		Events:      events,
		DeadLetters: deadLetters,
		MaxAttempts: 4,
	})
	job.now = func() time.Time { return time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), events.cutoff)
	assert.Equal(t, 4, events.minAttempts)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), deadLetters.cutoff)
}

func TestOutboxRetentionStopsOnEventError(t *testing.T) {
	deadLetters := &fakeDeadLetterPruner{}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{
		Events:      &fakeEventPruner{err: errors.New("boom")},
		DeadLetters: deadLetters,
	})

	require.Error(t, job.Run(context.Background()))
	assert.Zero(t, deadLetters.calls)
}

func TestOutboxRetentionWithoutDeadLetterPruner(t *testing.T) {
	events := &fakeEventPruner{}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{Events: events})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, defaultPublishMaxAttempts, events.minAttempts)
}

func TestNewOutboxRetentionJobRequiresEvents(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}})
	require.Error(t, err)
}
