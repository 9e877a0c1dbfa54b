package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/farmolink/farmolink-backend/pkg/db"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// Repository reads completed orders and moves their commission status in bulk.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CompletedOrders(ctx context.Context, pharmacyID *uuid.UUID, from, to *time.Time) ([]models.Order, error)
	LockSettleable(ctx context.Context, pharmacyID uuid.UUID, from, to time.Time, statuses []enums.CommissionStatus) ([]models.Order, error)
	SetCommissionStatus(ctx context.Context, ids []uuid.UUID, from []enums.CommissionStatus, to enums.CommissionStatus) (int64, error)
	InsertEvent(ctx context.Context, event *models.SettlementEvent) error
	ListEvents(ctx context.Context, pharmacyID uuid.UUID) ([]models.SettlementEvent, error)
	PendingOrders(ctx context.Context, before time.Time) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CompletedOrders(ctx context.Context, pharmacyID *uuid.UUID, from, to *time.Time) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("status = ?", enums.OrderStatusCompleted)
	if pharmacyID != nil {
		query = query.Where("pharmacy_id = ?", *pharmacyID)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at < ?", *to)
	}
	var rows []models.Order
	err := query.Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// LockSettleable selects the completed orders of one pharmacy month whose
// commission is in one of statuses, row-locking them on Postgres so the
// amount and the update below see the same set.
func (r *repository) LockSettleable(ctx context.Context, pharmacyID uuid.UUID, from, to time.Time, statuses []enums.CommissionStatus) ([]models.Order, error) {
	query := r.db.WithContext(ctx)
	if dbpkg.IsPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []models.Order
	err := query.
		Where("pharmacy_id = ? AND status = ?", pharmacyID, enums.OrderStatusCompleted).
		Where("commission_status IN ?", statuses).
		Where("created_at >= ? AND created_at < ?", from, to).
		Find(&rows).Error
	return rows, err
}

func (r *repository) SetCommissionStatus(ctx context.Context, ids []uuid.UUID, from []enums.CommissionStatus, to enums.CommissionStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ? AND commission_status IN ?", ids, from).
		Update("commission_status", to)
	return res.RowsAffected, res.Error
}

func (r *repository) InsertEvent(ctx context.Context, event *models.SettlementEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, pharmacyID uuid.UUID) ([]models.SettlementEvent, error) {
	var rows []models.SettlementEvent
	err := r.db.WithContext(ctx).
		Where("pharmacy_id = ?", pharmacyID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// PendingOrders returns completed orders with unpaid commission created
// before the cutoff.
func (r *repository) PendingOrders(ctx context.Context, before time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND commission_status = ?", enums.OrderStatusCompleted, enums.CommissionStatusPending).
		Where("created_at < ?", before).
		Order("created_at").
		Find(&rows).Error
	return rows, err
}
