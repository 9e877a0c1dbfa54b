package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/internal/settlement"
	"github.com/farmolink/farmolink-backend/pkg/db/dbtest"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
)

type gormTx struct{ db *gorm.DB }

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type fakePending struct {
	months []settlement.PendingMonth
	before time.Time
	err    error
}

func (f *fakePending) PendingMonths(_ context.Context, before time.Time) ([]settlement.PendingMonth, error) {
	f.before = before
	return f.months, f.err
}

func newReminderJob(t *testing.T, db *gorm.DB, pending *fakePending) *settlementReminderJob {
	t.Helper()
	jobIface, err := NewSettlementReminderJob(SettlementReminderJobParams{
		Logger:     logger.Nop(),
		DB:         gormTx{db: db},
		Settlement: pending,
		Outbox:     outbox.NewService(outbox.NewRepository(db), logger.Nop()),
	})
	if err != nil {
		t.Fatalf("NewSettlementReminderJob: %v", err)
	}
	return jobIface.(*settlementReminderJob)
}

func TestSettlementReminderJobQueuesOncePerDay(t *testing.T) {
	db := dbtest.Open(t)
	pharmacy := uuid.New()
	pending := &fakePending{months: []settlement.PendingMonth{
		{PharmacyID: pharmacy, Year: 2026, Month: 1, Orders: 3, Amount: 900},
		{PharmacyID: pharmacy, Year: 2026, Month: 2, Orders: 1, Amount: 125},
	}}
	job := newReminderJob(t, db, pending)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC); !pending.before.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, pending.before)
	}
	now = now.Add(6 * time.Hour)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := countReminders(t, db); got != 2 {
		t.Fatalf("expected 2 reminders after same-day rerun, got %d", got)
	}

	now = now.Add(24 * time.Hour)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("next-day Run: %v", err)
	}
	if got := countReminders(t, db); got != 4 {
		t.Fatalf("expected 4 reminders on the following day, got %d", got)
	}

	var row models.OutboxEvent
	if err := db.Where("event_type = ?", enums.EventSettlementReminder).Order("created_at").First(&row).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var data payloads.SettlementEvent
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if data.PharmacyID != pharmacy {
		t.Fatalf("unexpected pharmacy in payload: %s", data.PharmacyID)
	}
}

func TestSettlementReminderJobPropagatesLookupError(t *testing.T) {
	db := dbtest.Open(t)
	job := newReminderJob(t, db, &fakePending{err: errors.New("db down")})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func countReminders(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSettlementReminder).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
