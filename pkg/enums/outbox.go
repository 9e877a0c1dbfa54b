package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePrescriptionRequest OutboxAggregateType = "prescription_request"
	AggregateQuote               OutboxAggregateType = "quote"
	AggregateOrder               OutboxAggregateType = "order"
	AggregateSettlement          OutboxAggregateType = "settlement"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePrescriptionRequest,
	AggregateQuote,
	AggregateOrder,
	AggregateSettlement,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPrescriptionRequested OutboxEventType = "prescription_requested"
	EventQuoteSubmitted        OutboxEventType = "quote_submitted"
	EventQuoteAccepted         OutboxEventType = "quote_accepted"
	EventQuoteDeclined         OutboxEventType = "quote_declined"
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventSettlementReported    OutboxEventType = "settlement_reported"
	EventSettlementConfirmed   OutboxEventType = "settlement_confirmed"
	EventSettlementReminder    OutboxEventType = "settlement_reminder"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPrescriptionRequested,
	EventQuoteSubmitted,
	EventQuoteAccepted,
	EventQuoteDeclined,
	EventOrderCreated,
	EventOrderStatusChanged,
	EventSettlementReported,
	EventSettlementConfirmed,
	EventSettlementReminder,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
