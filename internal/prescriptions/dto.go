package prescriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// SubmitRequestInput carries a new prescription request. Exactly one of
// ImageURL and ImageDataURL is expected.
type SubmitRequestInput struct {
	CustomerID        uuid.UUID
	ImageURL          string
	ImageDataURL      string
	TargetPharmacyIDs []uuid.UUID
	Notes             *string
}

// SubmitQuoteInput carries a priced response from one pharmacy.
type SubmitQuoteInput struct {
	RequestID    uuid.UUID
	PharmacyID   uuid.UUID
	PharmacyName string
	Items        []models.QuotedItem
	DeliveryFee  int64
	Notes        *string
}

// AcceptQuoteInput carries the contact details copied onto the order.
type AcceptQuoteInput struct {
	CustomerID    uuid.UUID
	QuoteID       uuid.UUID
	CustomerName  string
	Address       string
	CustomerPhone string
}

type QuoteDTO struct {
	ID              uuid.UUID           `json:"id"`
	PrescriptionID  uuid.UUID           `json:"prescriptionId"`
	PharmacyID      uuid.UUID           `json:"pharmacyId"`
	PharmacyName    string              `json:"pharmacyName"`
	Items           []models.QuotedItem `json:"items"`
	TotalPrice      int64               `json:"totalPrice"`
	DeliveryFee     int64               `json:"deliveryFee"`
	Notes           *string             `json:"notes,omitempty"`
	RejectionReason *string             `json:"rejectionReason,omitempty"`
	Status          enums.QuoteStatus   `json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
}

type RequestDTO struct {
	ID               uuid.UUID                `json:"id"`
	CustomerID       uuid.UUID                `json:"customerId"`
	ImageURL         string                   `json:"imageUrl"`
	Notes            *string                  `json:"notes,omitempty"`
	Status           enums.PrescriptionStatus `json:"status"`
	TargetPharmacies []uuid.UUID              `json:"targetPharmacies,omitempty"`
	Quotes           []QuoteDTO               `json:"quotes"`
	CreatedAt        time.Time                `json:"createdAt"`
}

type RequestList struct {
	Requests   []RequestDTO `json:"requests"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// AcceptResult is returned when a quote turns into an order.
type AcceptResult struct {
	OrderID   uuid.UUID `json:"orderId"`
	QuoteID   uuid.UUID `json:"quoteId"`
	Total     int64     `json:"total"`
	Duplicate bool      `json:"duplicate"`
}

func QuoteToDTO(q models.Quote) QuoteDTO {
	items := q.Items
	if items == nil {
		items = []models.QuotedItem{}
	}
	return QuoteDTO{
		ID:              q.ID,
		PrescriptionID:  q.PrescriptionID,
		PharmacyID:      q.PharmacyID,
		PharmacyName:    q.PharmacyName,
		Items:           items,
		TotalPrice:      q.TotalPrice,
		DeliveryFee:     q.DeliveryFee,
		Notes:           q.Notes,
		RejectionReason: q.RejectionReason,
		Status:          q.Status,
		CreatedAt:       q.CreatedAt,
	}
}

// RequestToDTO maps a request with whatever quotes the viewer may see. The
// target list is only shown to the owning customer.
func RequestToDTO(r models.PrescriptionRequest, showTargets bool) RequestDTO {
	dto := RequestDTO{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		ImageURL:   r.ImageURL,
		Notes:      r.Notes,
		Status:     r.Status,
		Quotes:     make([]QuoteDTO, 0, len(r.Quotes)),
		CreatedAt:  r.CreatedAt,
	}
	if showTargets {
		dto.TargetPharmacies = r.TargetPharmacies
	}
	for _, q := range r.Quotes {
		dto.Quotes = append(dto.Quotes, QuoteToDTO(q))
	}
	return dto
}
