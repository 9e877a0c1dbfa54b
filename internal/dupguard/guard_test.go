package dupguard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/db/dbtest"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

func insertOrder(t *testing.T, db *gorm.DB, pharmacyID uuid.UUID, name string, total int64, created time.Time, key *string) models.Order {
	t.Helper()
	order := models.Order{
		CustomerID:       uuid.New(),
		CustomerName:     name,
		CustomerPhone:    "923000000",
		PharmacyID:       pharmacyID,
		Items:            []models.OrderItem{{Name: "Paracetamol", Quantity: 1, UnitPrice: total}},
		Total:            total,
		Type:             enums.OrderTypePickup,
		Status:           enums.OrderStatusPending,
		CommissionStatus: enums.CommissionStatusPending,
		IdempotencyKey:   key,
		CreatedAt:        created,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestCheckFindsOrderInsideWindow(t *testing.T) {
	db := dbtest.Open(t)
	guard := New(45 * time.Second)
	pharmacyID := uuid.New()
	now := time.Now().UTC()

	existing := insertOrder(t, db, pharmacyID, "Ana", 3000, now.Add(-30*time.Second), nil)

	id, err := guard.Check(context.Background(), db, pharmacyID, "Ana", 3000, now)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, existing.ID, *id)
}

func TestCheckIgnoresOrdersOutsideWindowOrWithOtherValues(t *testing.T) {
	db := dbtest.Open(t)
	guard := New(45 * time.Second)
	pharmacyID := uuid.New()
	now := time.Now().UTC()

	insertOrder(t, db, pharmacyID, "Ana", 3000, now.Add(-46*time.Second), nil)
	insertOrder(t, db, pharmacyID, "Ana", 3100, now.Add(-5*time.Second), nil)
	insertOrder(t, db, pharmacyID, "Bruno", 3000, now.Add(-5*time.Second), nil)
	insertOrder(t, db, uuid.New(), "Ana", 3000, now.Add(-5*time.Second), nil)

	id, err := guard.Check(context.Background(), db, pharmacyID, "Ana", 3000, now)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestFindByKey(t *testing.T) {
	db := dbtest.Open(t)
	guard := New(0)
	assert.Equal(t, DefaultWindow, guard.Window())

	key := "quote:123"
	order := insertOrder(t, db, uuid.New(), "Ana", 100, time.Now().UTC(), &key)

	id, err := guard.FindByKey(context.Background(), db, order.CustomerID, key)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, order.ID, *id)

	id, err = guard.FindByKey(context.Background(), db, uuid.New(), key)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestLockIsNoopOnSQLite(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, New(time.Second).Lock(context.Background(), db, uuid.New(), "Ana", 10))
}
