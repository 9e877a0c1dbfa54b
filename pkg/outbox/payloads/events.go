package payloads

import (
	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// PrescriptionRequestedEvent fans a new request out to its target pharmacies.
type PrescriptionRequestedEvent struct {
	PrescriptionID    uuid.UUID   `json:"prescription_id"`
	CustomerID        uuid.UUID   `json:"customer_id"`
	TargetPharmacyIDs []uuid.UUID `json:"target_pharmacy_ids"`
}

// QuoteSubmittedEvent is emitted for both priced quotes and declines.
type QuoteSubmittedEvent struct {
	QuoteID         uuid.UUID         `json:"quote_id"`
	PrescriptionID  uuid.UUID         `json:"prescription_id"`
	CustomerID      uuid.UUID         `json:"customer_id"`
	PharmacyID      uuid.UUID         `json:"pharmacy_id"`
	PharmacyName    string            `json:"pharmacy_name"`
	Status          enums.QuoteStatus `json:"status"`
	TotalPrice      int64             `json:"total_price"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}

// QuoteAcceptedEvent carries the winner and every sibling that was auto-rejected.
type QuoteAcceptedEvent struct {
	QuoteID             uuid.UUID   `json:"quote_id"`
	PrescriptionID      uuid.UUID   `json:"prescription_id"`
	CustomerID          uuid.UUID   `json:"customer_id"`
	PharmacyID          uuid.UUID   `json:"pharmacy_id"`
	OrderID             uuid.UUID   `json:"order_id"`
	Total               int64       `json:"total"`
	RejectedPharmacyIDs []uuid.UUID `json:"rejected_pharmacy_ids"`
}

// QuoteDeclinedEvent is emitted when the customer turns down a single quote.
type QuoteDeclinedEvent struct {
	QuoteID        uuid.UUID `json:"quote_id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	PharmacyID     uuid.UUID `json:"pharmacy_id"`
}

type OrderCreatedEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	PharmacyID       uuid.UUID       `json:"pharmacy_id"`
	Type             enums.OrderType `json:"type"`
	Total            int64           `json:"total"`
	CommissionAmount int64           `json:"commission_amount"`
	QuoteID          *uuid.UUID      `json:"quote_id,omitempty"`
}

type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	PharmacyID uuid.UUID         `json:"pharmacy_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	ActorRole  enums.ActorRole   `json:"actor_role"`
}

// SettlementEvent covers reported, confirmed and reminder notices for one
// pharmacy month.
type SettlementEvent struct {
	PharmacyID     uuid.UUID `json:"pharmacy_id"`
	Year           int       `json:"year"`
	Month          int       `json:"month"`
	OrdersAffected int64     `json:"orders_affected"`
	Amount         int64     `json:"amount"`
}
