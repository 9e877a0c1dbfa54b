package pharmacies

import (
	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// DTO is the public directory entry. CommissionRate is only filled for admins.
type DTO struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	Phone          *string              `json:"phone,omitempty"`
	Address        *string              `json:"address,omitempty"`
	IsAvailable    bool                 `json:"isAvailable"`
	Status         enums.PharmacyStatus `json:"status"`
	CommissionRate *string              `json:"commissionRate,omitempty"`
}

func ToDTO(p models.Pharmacy, viewer enums.ActorRole) DTO {
	dto := DTO{
		ID:          p.ID,
		Name:        p.Name,
		Phone:       p.Phone,
		Address:     p.Address,
		IsAvailable: p.IsAvailable,
		Status:      p.Status,
	}
	if viewer == enums.ActorRoleAdmin && p.CommissionRate.Valid {
		rate := p.CommissionRate.Decimal.StringFixed(2)
		dto.CommissionRate = &rate
	}
	return dto
}
