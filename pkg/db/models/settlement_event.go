package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// SettlementEvent is the append-only audit row written for each bulk
// commission status change.
type SettlementEvent struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PharmacyID     uuid.UUID                 `gorm:"column:pharmacy_id;type:uuid;not null"`
	Year           int                       `gorm:"column:year;not null"`
	Month          int                       `gorm:"column:month;not null"`
	Type           enums.SettlementEventType `gorm:"column:type;type:settlement_event_type;not null"`
	OrdersAffected int64                     `gorm:"column:orders_affected;not null"`
	Amount         int64                     `gorm:"column:amount;not null"`
	ActorUserID    uuid.UUID                 `gorm:"column:actor_user_id;type:uuid;not null"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (e *SettlementEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
