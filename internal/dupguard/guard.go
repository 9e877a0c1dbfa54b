// Package dupguard suppresses accidental double submissions of the same order.
package dupguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/farmolink/farmolink-backend/pkg/db"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
)

// DefaultWindow is how far back an identical order counts as a duplicate.
const DefaultWindow = 45 * time.Second

// Guard implements the two duplicate checks: the idempotency-key lookup and
// the time-window heuristic for clients that send no key.
type Guard struct {
	window time.Duration
}

func New(window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{window: window}
}

// Window returns the configured duplicate window.
func (g *Guard) Window() time.Duration {
	return g.window
}

// Lock serialises check-then-insert for one (pharmacy, customer name, total)
// key until tx ends. It is a no-op outside Postgres.
func (g *Guard) Lock(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, customerName string, total int64) error {
	if !dbpkg.IsPostgres(tx) {
		return nil
	}
	return tx.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", lockKey(pharmacyID, customerName, total)).
		Error
}

// Check returns the id of an order with the same pharmacy, customer name and
// total created in (now-window, now], if any.
func (g *Guard) Check(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, customerName string, total int64, now time.Time) (*uuid.UUID, error) {
	since := now.UTC().Add(-g.window)
	var order models.Order
	err := tx.WithContext(ctx).
		Select("id").
		Where("pharmacy_id = ? AND customer_name = ? AND total = ?", pharmacyID, customerName, total).
		Where("created_at > ? AND created_at <= ?", since, now.UTC()).
		Order("created_at DESC").
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order.ID, nil
}

// FindByKey returns the order previously created by customerID with key.
func (g *Guard) FindByKey(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, key string) (*uuid.UUID, error) {
	var order models.Order
	err := tx.WithContext(ctx).
		Select("id").
		Where("customer_id = ? AND idempotency_key = ?", customerID, key).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order.ID, nil
}

func lockKey(pharmacyID uuid.UUID, customerName string, total int64) string {
	return fmt.Sprintf("order-dup:%s:%s:%d", pharmacyID, customerName, total)
}
