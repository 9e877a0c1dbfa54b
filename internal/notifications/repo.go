package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/pagination"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	CreateAll(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, filter inboxFilter, params pagination.Params) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipient Recipient, notificationID uuid.UUID, now time.Time) (markResult, error)
	MarkAllRead(ctx context.Context, recipient Recipient, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Recipient owns an inbox: direct notifications for UserID plus broadcasts
// addressed to Role.
type Recipient struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

type inboxFilter struct {
	Recipient  Recipient
	UnreadOnly bool
}

// markResult separates "already read" from "not in this inbox".
type markResult struct {
	Found   bool
	Updated bool
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

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// CreateAll stores the rows of one event together; either every recipient
// gets the notification or none does.
func (r *repository) CreateAll(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&notifications).Error
	})
}

func (r *repository) inbox(ctx context.Context, recipient Recipient) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("(user_id = ? OR audience_role = ?)", recipient.UserID, recipient.Role)
}

func (r *repository) List(ctx context.Context, filter inboxFilter, params pagination.Params) ([]models.Notification, error) {
	query := r.inbox(ctx, filter.Recipient)
	if filter.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	query, err := pagination.Keyset(query, params)
	if err != nil {
		return nil, err
	}
	var rows []models.Notification
	err = query.Find(&rows).Error
	return rows, err
}

func (r *repository) MarkRead(ctx context.Context, recipient Recipient, notificationID uuid.UUID, now time.Time) (markResult, error) {
	var row models.Notification
	err := r.inbox(ctx, recipient).Select("id", "read_at").Where("id = ?", notificationID).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return markResult{}, nil
	case err != nil:
		return markResult{}, err
	case row.ReadAt != nil:
		return markResult{Found: true}, nil
	}

	res := r.inbox(ctx, recipient).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return markResult{}, res.Error
	}
	return markResult{Found: true, Updated: res.RowsAffected > 0}, nil
}

func (r *repository) MarkAllRead(ctx context.Context, recipient Recipient, now time.Time) (int64, error) {
	res := r.inbox(ctx, recipient).
		Where("read_at IS NULL").
		UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore drops notifications read before cutoff. Unread rows stay
// regardless of age.
func (r *repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
