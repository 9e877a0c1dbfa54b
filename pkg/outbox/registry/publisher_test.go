package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
)

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry("")
	require.Error(t, err)
}

func TestEventRegistryResolveOrderCreated(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()
	pharmacyID := uuid.New()

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: mustEnvelope(t, mustMarshal(t, payloads.OrderCreatedEvent{
			OrderID:          orderID,
			CustomerID:       uuid.New(),
			PharmacyID:       pharmacyID,
			Type:             enums.OrderTypeDelivery,
			Total:            3000,
			CommissionAmount: 300,
		})),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "domain-topic", resolved.Descriptor.Topic)

	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, pharmacyID, payload.PharmacyID)
	assert.Equal(t, int64(300), payload.CommissionAmount)
	assert.Equal(t, 1, resolved.Envelope.Version)
}

func TestEventRegistryResolveSettlementEvents(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventSettlementReported,
		enums.EventSettlementConfirmed,
		enums.EventSettlementReminder,
	} {
		event := models.OutboxEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   uuid.New(),
			Payload: mustEnvelope(t, mustMarshal(t, payloads.SettlementEvent{
				PharmacyID: uuid.New(),
				Year:       2024,
				Month:      3,
			})),
		}
		resolved, err := reg.Resolve(event)
		require.NoError(t, err, string(eventType))
		_, ok := resolved.Payload.(*payloads.SettlementEvent)
		assert.True(t, ok, string(eventType))
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("pharmacy_exploded"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateQuote,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"order_id":"00000000-0000-0000-0000-000000000000"}`)),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryDecodeMalformedEnvelope(t *testing.T) {
	reg := newTestEventRegistry(t)

	_, _, err := reg.Decode(enums.EventQuoteSubmitted, []byte("{not json"))
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry("domain-topic")
	require.NoError(t, err)
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	return data
}
