package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/db/dbtest"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *Repository, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	return NewService(repo, logger.Nop()), repo, db
}

func orderCreated(id uuid.UUID) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   id,
		Actor:         NewActorRef(uuid.New(), nil, string(enums.ActorRoleCustomer)),
		Data:          map[string]string{"order_id": id.String()},
	}
}

func TestEmitWritesEnvelope(t *testing.T) {
	svc, _, db := newTestService(t)
	id := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, orderCreated(id))
	}))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, enums.EventOrderCreated, row.EventType)
	assert.Equal(t, id, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, string(enums.ActorRoleCustomer), envelope.Actor.Role)
	assert.JSONEq(t, `{"order_id":"`+id.String()+`"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	svc, _, db := newTestService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, orderCreated(uuid.New())); err != nil {
			return err
		}
		return errors.New("mutation failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	assert.Error(t, svc.Emit(ctx, nil, orderCreated(uuid.New())))

	bad := orderCreated(uuid.New())
	bad.EventType = "order_exploded"
	assert.Error(t, svc.Emit(ctx, db, bad))

	bad = orderCreated(uuid.New())
	bad.AggregateType = "cart"
	assert.Error(t, svc.Emit(ctx, db, bad))
}

func TestEmitIfNotExistsIsIdempotentPerAggregate(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	key := AggregateKey("settlement-reminder", "p1", "2026", "2", "2026-03-14")

	event := DomainEvent{
		EventType:     enums.EventSettlementReminder,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   key,
		Data:          map[string]int{"month": 2},
	}
	var first, second bool
	require.NoError(t, db.Transaction(func(tx *gorm.DB) (err error) {
		first, err = svc.EmitIfNotExists(ctx, tx, event)
		return err
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) (err error) {
		second, err = svc.EmitIfNotExists(ctx, tx, event)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAggregateKeyIsDeterministic(t *testing.T) {
	a := AggregateKey("settlement", "p1", "2026", "1")
	assert.Equal(t, a, AggregateKey("settlement", "p1", "2026", "1"))
	assert.NotEqual(t, a, AggregateKey("settlement", "p1", "2026", "2"))
	assert.NotEqual(t, AggregateKey("ab", "c"), AggregateKey("a", "bc"))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	svc, repo, db := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(ctx, db, orderCreated(uuid.New())))
	}

	var batch []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) (err error) {
		batch, err = repo.FetchUnpublishedForPublish(tx, 2, 5)
		return err
	}))
	require.Len(t, batch, 2)

	require.NoError(t, repo.MarkPublishedTx(db, batch[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, batch[1].ID, errors.New("pubsub unavailable")))

	var failed models.OutboxEvent
	require.NoError(t, db.First(&failed, "id = ?", batch[1].ID).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "pubsub unavailable", *failed.LastError)

	require.NoError(t, repo.MarkTerminalTx(db, batch[1].ID, errors.New("poison"), 5))
	var pending []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) (err error) {
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, pending, 1)
	assert.NotEqual(t, batch[0].ID, pending[0].ID)
	assert.NotEqual(t, batch[1].ID, pending[0].ID)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	svc, repo, db := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(ctx, db, orderCreated(uuid.New())))
	}
	var rows []models.OutboxEvent
	require.NoError(t, db.Order("id").Find(&rows).Error)
	old := time.Now().UTC().AddDate(0, 0, -40)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("1 = 1").Update("created_at", old).Error)
	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkTerminalTx(db, rows[1].ID, errors.New("poison"), 5))

	deleted, err := repo.DeletePublishedBefore(ctx, db, time.Now().UTC().AddDate(0, 0, -30), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var left models.OutboxEvent
	require.NoError(t, db.First(&left).Error)
	assert.Equal(t, rows[2].ID, left.ID)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	db := dbtest.Open(t)
	dlq := NewDLQRepository(db)
	eventID := uuid.New()
	long := strings.Repeat("x", maxLastErrorLen+50)

	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		AttemptCount:  5,
	}))

	var stored models.OutboxDLQ
	require.NoError(t, db.Where("event_id = ?", eventID).Take(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, maxLastErrorLen)
}

func TestClipKeepsUTF8Valid(t *testing.T) {
	msg := strings.Repeat("a", maxLastErrorLen-1) + "ñ"
	clipped := clip(msg)
	assert.True(t, utf8.ValidString(*clipped))
	assert.Len(t, *clipped, maxLastErrorLen-1)
}
