package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// CreateOrderInput carries everything needed to place an order. Items are a
// snapshot and never reference the catalog.
type CreateOrderInput struct {
	CustomerID     uuid.UUID
	CustomerName   string
	CustomerPhone  string
	PharmacyID     uuid.UUID
	Items          []models.OrderItem
	Total          int64
	Type           enums.OrderType
	Address        *string
	IdempotencyKey *string
	PrescriptionID *uuid.UUID
	QuoteID        *uuid.UUID
}

// CreateOrderResult reports the order id and whether it already existed.
type CreateOrderResult struct {
	OrderID   uuid.UUID `json:"orderId"`
	Duplicate bool      `json:"duplicate"`
}

// OrderItemDTO is the wire form of a snapshot line.
type OrderItemDTO struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// OrderDTO is the API representation of an order.
type OrderDTO struct {
	ID               uuid.UUID              `json:"id"`
	CustomerID       uuid.UUID              `json:"customerId"`
	CustomerName     string                 `json:"customerName"`
	CustomerPhone    string                 `json:"customerPhone"`
	PharmacyID       uuid.UUID              `json:"pharmacyId"`
	PrescriptionID   *uuid.UUID             `json:"prescriptionId,omitempty"`
	QuoteID          *uuid.UUID             `json:"quoteId,omitempty"`
	Items            []OrderItemDTO         `json:"items"`
	Total            int64                  `json:"total"`
	Type             enums.OrderType        `json:"type"`
	Address          *string                `json:"address,omitempty"`
	Status           enums.OrderStatus      `json:"status"`
	CommissionRate   *string                `json:"commissionRate,omitempty"`
	CommissionAmount *int64                 `json:"commissionAmount,omitempty"`
	CommissionStatus enums.CommissionStatus `json:"commissionStatus,omitempty"`
	NextStatuses     []enums.OrderStatus    `json:"nextStatuses,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// OrderList wraps a page of orders plus the next cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ToDTO maps the row for the given viewer; NextStatuses lists the moves the
// viewer may make.
func ToDTO(order models.Order, viewer enums.ActorRole) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO(item))
	}
	dto := OrderDTO{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		CustomerName:     order.CustomerName,
		CustomerPhone:    order.CustomerPhone,
		PharmacyID:       order.PharmacyID,
		PrescriptionID:   order.PrescriptionID,
		QuoteID:          order.QuoteID,
		Items:            items,
		Total:            order.Total,
		Type:             order.Type,
		Address:          order.Address,
		Status:           order.Status,
		CommissionAmount: order.CommissionAmount,
		CommissionStatus: order.CommissionStatus,
		NextStatuses:     NextStatuses(order.Status, viewer, order.Type),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	if order.CommissionRate.Valid {
		rate := order.CommissionRate.Decimal.String()
		dto.CommissionRate = &rate
	}
	if viewer == enums.ActorRoleCustomer {
		// platform fees are between the pharmacy and the platform
		dto.CommissionRate = nil
		dto.CommissionAmount = nil
		dto.CommissionStatus = ""
	}
	return dto
}
