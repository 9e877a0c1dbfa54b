package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// Notification is an in-app inbox entry. It targets a single user, or every
// user holding AudienceRole when UserID is nil.
type Notification struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       *uuid.UUID             `gorm:"column:user_id;type:uuid"`
	AudienceRole *enums.ActorRole       `gorm:"column:audience_role;type:actor_role"`
	Type         enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title        string                 `gorm:"column:title;type:text;not null"`
	Message      string                 `gorm:"column:message;type:text;not null"`
	Link         *string                `gorm:"column:link;type:text"`
	EventID      *uuid.UUID             `gorm:"column:event_id;type:uuid"`
	ReadAt       *time.Time             `gorm:"column:read_at;type:timestamptz"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
