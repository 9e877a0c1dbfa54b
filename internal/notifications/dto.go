package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

type NotificationDTO struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	Read      bool                   `json:"read"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type ListResponse struct {
	Items  []NotificationDTO `json:"items"`
	Cursor string            `json:"cursor,omitempty"`
}

func ToDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Read:      n.ReadAt != nil,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func (r *ListResult) Response() ListResponse {
	out := ListResponse{Items: make([]NotificationDTO, 0, len(r.Items)), Cursor: r.Cursor}
	for _, n := range r.Items {
		out.Items = append(out.Items, ToDTO(n))
	}
	return out
}
