package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// Pharmacy is the read-mostly directory row the marketplace core depends on.
type Pharmacy struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerUserID    uuid.UUID            `gorm:"column:owner_user_id;type:uuid;not null"`
	Name           string               `gorm:"column:name;not null"`
	Phone          *string              `gorm:"column:phone"`
	Address        *string              `gorm:"column:address"`
	CommissionRate decimal.NullDecimal  `gorm:"column:commission_rate;type:numeric(5,2)"`
	IsAvailable    bool                 `gorm:"column:is_available;not null"`
	Status         enums.PharmacyStatus `gorm:"column:status;type:pharmacy_status;not null;default:'pending'"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Pharmacy) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Eligible reports whether the pharmacy may receive requests and orders.
func (p Pharmacy) Eligible() bool {
	return p.Status == enums.PharmacyStatusApproved && p.IsAvailable
}
