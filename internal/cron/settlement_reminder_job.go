package cron

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/internal/settlement"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
)

type SettlementReminderJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Settlement pendingSettlements
	Outbox     reminderEmitter
}

type pendingSettlements interface {
	PendingMonths(ctx context.Context, before time.Time) ([]settlement.PendingMonth, error)
}

type reminderEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewSettlementReminderJob nags pharmacies about closed months whose
// commission is still pending. Each pharmacy month is reminded at most once
// per UTC day, however often the job runs.
func NewSettlementReminderJob(params SettlementReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &settlementReminderJob{
		logg:       params.Logger,
		db:         params.DB,
		settlement: params.Settlement,
		outbox:     params.Outbox,
		now:        time.Now,
	}, nil
}

type settlementReminderJob struct {
	logg       *logger.Logger
	db         txRunner
	settlement pendingSettlements
	outbox     reminderEmitter
	now        func() time.Time
}

func (j *settlementReminderJob) Name() string { return "settlement-reminder" }

func (j *settlementReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	pending, err := j.settlement.PendingMonths(ctx, monthStart)
	if err != nil {
		return fmt.Errorf("load pending settlements: %w", err)
	}

	day := now.Format(time.DateOnly)
	queued := 0
	for _, month := range pending {
		event := outbox.DomainEvent{
			EventType:     enums.EventSettlementReminder,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   reminderKey(month, day),
			Data: payloads.SettlementEvent{
				PharmacyID:     month.PharmacyID,
				Year:           month.Year,
				Month:          month.Month,
				OrdersAffected: month.Orders,
				Amount:         month.Amount,
			},
			OccurredAt: now,
		}
		var emitted bool
		if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var emitErr error
			emitted, emitErr = j.outbox.EmitIfNotExists(ctx, tx, event)
			return emitErr
		}); err != nil {
			return fmt.Errorf("queue reminder for %s %d-%02d: %w", month.PharmacyID, month.Year, month.Month, err)
		}
		if emitted {
			queued++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"pending_months": len(pending),
		"queued":         queued,
		"before":         monthStart,
	})
	j.logg.Info(logCtx, "settlement reminders queued")
	return nil
}

func reminderKey(month settlement.PendingMonth, day string) uuid.UUID {
	return outbox.AggregateKey("settlement-reminder", month.PharmacyID.String(), strconv.Itoa(month.Year), strconv.Itoa(month.Month), day)
}
