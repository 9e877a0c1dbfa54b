package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// OrderItem is a snapshot line; it never references the catalog or a quote row.
type OrderItem struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// Order is a customer purchase from one pharmacy.
type Order struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID              `gorm:"column:customer_id;type:uuid;not null"`
	CustomerName     string                 `gorm:"column:customer_name;not null"`
	CustomerPhone    string                 `gorm:"column:customer_phone;not null"`
	PharmacyID       uuid.UUID              `gorm:"column:pharmacy_id;type:uuid;not null"`
	PrescriptionID   *uuid.UUID             `gorm:"column:prescription_id;type:uuid"`
	QuoteID          *uuid.UUID             `gorm:"column:quote_id;type:uuid"`
	Items            []OrderItem            `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Total            int64                  `gorm:"column:total;not null"`
	Type             enums.OrderType        `gorm:"column:type;type:order_type;not null"`
	Address          *string                `gorm:"column:address"`
	Status           enums.OrderStatus      `gorm:"column:status;type:order_status;not null;default:'pending'"`
	CommissionRate   decimal.NullDecimal    `gorm:"column:commission_rate;type:numeric(5,2)"`
	CommissionAmount *int64                 `gorm:"column:commission_amount"`
	CommissionStatus enums.CommissionStatus `gorm:"column:commission_status;type:commission_status;not null;default:'pending'"`
	IdempotencyKey   *string                `gorm:"column:idempotency_key"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
