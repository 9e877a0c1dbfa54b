package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays     = 30
	defaultDeadLetterRetentionDays = 90
	defaultPublishMaxAttempts      = 10
)

// OutboxRetentionJobParams configures pruning of the outbox tables. Events are
// dropped once delivered, or once they used up MaxAttempts because the
// publisher has already copied them to the dead-letter table. Dead letters
// outlive events so operators can still replay them.
type OutboxRetentionJobParams struct {
	Logger              *logger.Logger
	DB                  txRunner
	Events              outboxEventPruner
	DeadLetters         deadLetterPruner
	Retention           int
	DeadLetterRetention int
	MaxAttempts         int
}

type outboxEventPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Events == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:           params.Logger,
		db:             params.DB,
		events:         params.Events,
		deadLetters:    params.DeadLetters,
		eventDays:      positiveOr(params.Retention, defaultOutboxRetentionDays),
		deadLetterDays: positiveOr(params.DeadLetterRetention, defaultDeadLetterRetentionDays),
		maxAttempts:    positiveOr(params.MaxAttempts, defaultPublishMaxAttempts),
		now:            time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg           *logger.Logger
	db             txRunner
	events         outboxEventPruner
	deadLetters    deadLetterPruner
	eventDays      int
	deadLetterDays int
	maxAttempts    int
	now            func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.AddDate(0, 0, -j.eventDays)
	deadLetterCutoff := now.AddDate(0, 0, -j.deadLetterDays)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(ctx, tx, eventCutoff, j.maxAttempts); err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
		if j.deadLetters == nil {
			return nil
		}
		if deadLetters, err = j.deadLetters.DeleteFailedBefore(ctx, tx, deadLetterCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"dead_letter_cutoff":   deadLetterCutoff,
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention cleanup complete")
	return nil
}

func positiveOr[T int | time.Duration](value, fallback T) T {
	if value > 0 {
		return value
	}
	return fallback
}
