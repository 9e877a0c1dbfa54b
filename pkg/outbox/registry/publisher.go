// Package registry knows which outbox event types exist, the aggregate each
// belongs to and the typed payload its envelope carries.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a failure that will repeat on every attempt, such
// as a payload that does not decode. Publishers dead-letter it and consumers
// ack it.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanentf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// catalog lists every event the marketplace emits.
var catalog = map[enums.OutboxEventType]EventDescriptor{
	enums.EventPrescriptionRequested: {AggregateType: enums.AggregatePrescriptionRequest, PayloadFactory: payloadOf[payloads.PrescriptionRequestedEvent]()},
	enums.EventQuoteSubmitted:        {AggregateType: enums.AggregateQuote, PayloadFactory: payloadOf[payloads.QuoteSubmittedEvent]()},
	enums.EventQuoteAccepted:         {AggregateType: enums.AggregateQuote, PayloadFactory: payloadOf[payloads.QuoteAcceptedEvent]()},
	enums.EventQuoteDeclined:         {AggregateType: enums.AggregateQuote, PayloadFactory: payloadOf[payloads.QuoteDeclinedEvent]()},
	enums.EventOrderCreated:          {AggregateType: enums.AggregateOrder, PayloadFactory: payloadOf[payloads.OrderCreatedEvent]()},
	enums.EventOrderStatusChanged:    {AggregateType: enums.AggregateOrder, PayloadFactory: payloadOf[payloads.OrderStatusChangedEvent]()},
	enums.EventSettlementReported:    {AggregateType: enums.AggregateSettlement, PayloadFactory: payloadOf[payloads.SettlementEvent]()},
	enums.EventSettlementConfirmed:   {AggregateType: enums.AggregateSettlement, PayloadFactory: payloadOf[payloads.SettlementEvent]()},
	enums.EventSettlementReminder:    {AggregateType: enums.AggregateSettlement, PayloadFactory: payloadOf[payloads.SettlementEvent]()},
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every event to domainTopic. Subscribers filter on
// the event_type message attribute.
func NewEventRegistry(domainTopic string) (*EventRegistry, error) {
	if domainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for eventType, desc := range catalog {
		desc.EventType = eventType
		desc.Topic = domainTopic
		reg.entries[eventType] = desc
	}
	return reg, nil
}

func (r *EventRegistry) descriptor(eventType enums.OutboxEventType) (EventDescriptor, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return EventDescriptor{}, permanentf("unsupported event type %s", eventType)
	}
	return desc, nil
}

// Resolve checks an outbox row against its descriptor and decodes it. Every
// failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.descriptor(event.EventType)
	if err != nil {
		return nil, err
	}
	switch {
	case desc.AggregateType != event.AggregateType:
		return nil, permanentf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanentf("missing aggregate_id")
	}

	envelope, payload, err := r.Decode(event.EventType, event.Payload)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// Decode parses an envelope and its typed payload. Consumers call it on the
// message data they receive.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, raw []byte) (outbox.PayloadEnvelope, any, error) {
	var envelope outbox.PayloadEnvelope
	desc, err := r.descriptor(eventType)
	if err != nil {
		return envelope, nil, err
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, nil, permanentf("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return envelope, nil, permanentf("payload missing for %s", eventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return envelope, nil, permanentf("decode %s payload: %w", eventType, err)
	}
	return envelope, payload, nil
}
