package pharmacies

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// Repository reads the pharmacy directory.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListEligible(ctx context.Context) ([]models.Pharmacy, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Pharmacy, error)
	OwnerOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	UpdateCommissionRate(ctx context.Context, id uuid.UUID, rate *decimal.Decimal) (int64, error)
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

func (r *repository) ListEligible(ctx context.Context) ([]models.Pharmacy, error) {
	var rows []models.Pharmacy
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_available = ?", enums.PharmacyStatusApproved, true).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	var pharmacy models.Pharmacy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pharmacy).Error; err != nil {
		return nil, err
	}
	return &pharmacy, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Pharmacy, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Pharmacy
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *repository) OwnerOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var pharmacy models.Pharmacy
	err := r.db.WithContext(ctx).Select("owner_user_id").Where("id = ?", id).First(&pharmacy).Error
	return pharmacy.OwnerUserID, err
}

func (r *repository) UpdateCommissionRate(ctx context.Context, id uuid.UUID, rate *decimal.Decimal) (int64, error) {
	value := decimal.NullDecimal{}
	if rate != nil {
		value = decimal.NewNullDecimal(*rate)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Pharmacy{}).
		Where("id = ?", id).
		Update("commission_rate", value)
	return res.RowsAffected, res.Error
}
