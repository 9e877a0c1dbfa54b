package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/farmolink/farmolink-backend/pkg/db/types"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// PrescriptionRequest is one customer prescription fanned out to several pharmacies.
type PrescriptionRequest struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID                `gorm:"column:customer_id;type:uuid;not null"`
	ImageURL         string                   `gorm:"column:image_url;not null"`
	Notes            *string                  `gorm:"column:notes"`
	Status           enums.PrescriptionStatus `gorm:"column:status;type:prescription_status;not null;default:'waiting_for_quotes'"`
	TargetPharmacies dbtypes.UUIDArray        `gorm:"column:target_pharmacies;type:uuid[];not null"`
	Quotes           []Quote                  `gorm:"foreignKey:PrescriptionID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (PrescriptionRequest) TableName() string { return "prescription_requests" }

func (p *PrescriptionRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// QuotedItem is one priced line of a pharmacy response.
type QuotedItem struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Available bool   `json:"available"`
}

// Quote is a pharmacy response to a PrescriptionRequest. A decline is stored
// as a rejected quote with no items and a zero total.
type Quote struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PrescriptionID  uuid.UUID         `gorm:"column:prescription_id;type:uuid;not null"`
	PharmacyID      uuid.UUID         `gorm:"column:pharmacy_id;type:uuid;not null"`
	PharmacyName    string            `gorm:"column:pharmacy_name;not null"`
	Items           []QuotedItem      `gorm:"column:items;type:jsonb;serializer:json;not null"`
	TotalPrice      int64             `gorm:"column:total_price;not null"`
	DeliveryFee     int64             `gorm:"column:delivery_fee;not null;default:0"`
	Notes           *string           `gorm:"column:notes"`
	RejectionReason *string           `gorm:"column:rejection_reason"`
	Status          enums.QuoteStatus `gorm:"column:status;type:quote_status;not null"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Quote) TableName() string { return "prescription_quotes" }

func (q *Quote) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

// AvailableItems returns the lines that count toward the total and the order.
func (q Quote) AvailableItems() []QuotedItem {
	out := make([]QuotedItem, 0, len(q.Items))
	for _, item := range q.Items {
		if item.Available {
			out = append(out, item)
		}
	}
	return out
}
