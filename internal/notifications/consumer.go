package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/idempotency"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
	"github.com/farmolink/farmolink-backend/pkg/outbox/registry"
)

const notificationConsumer = "notifications-worker"

type notificationWriter interface {
	CreateAll(ctx context.Context, notifications []models.Notification) error
}

// OwnerLookup resolves the user who receives a pharmacy's notifications.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, pharmacyID uuid.UUID) (uuid.UUID, error)
}

// EventDecoder turns broker message data back into a typed payload.
type EventDecoder interface {
	Decode(eventType enums.OutboxEventType, raw []byte) (outbox.PayloadEnvelope, interface{}, error)
}

// ProcessedTracker deduplicates redelivered events.
type ProcessedTracker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.State, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer watches domain events and turns them into inbox notifications.
type Consumer struct {
	repo         notificationWriter
	subscription *pubsub.Subscriber
	decoder      EventDecoder
	idempotency  ProcessedTracker
	owners       OwnerLookup
	metrics      *metrics.Marketplace
	logg         *logger.Logger
}

// ConsumerParams groups the consumer collaborators.
type ConsumerParams struct {
	Repo         notificationWriter
	Subscription *pubsub.Subscriber
	Decoder      EventDecoder
	Idempotency  ProcessedTracker
	Owners       OwnerLookup
	Metrics      *metrics.Marketplace
	Logger       *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Decoder == nil {
		return nil, fmt.Errorf("event decoder required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Owners == nil {
		return nil, fmt.Errorf("pharmacy owner lookup required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         params.Repo,
		subscription: params.Subscription,
		decoder:      params.Decoder,
		idempotency:  params.Idempotency,
		owners:       params.Owners,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("domain subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID, eventType string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	parsedType, err := enums.ParseOutboxEventType(eventType)
	if err != nil {
		c.logg.Info(logCtx, "skipping unknown event")
		return processResult{ack: true}
	}

	envelope, payload, err := c.decoder.Decode(parsedType, data)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			c.logg.Error(logCtx, "dropping undecodable event", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "failed to decode event", err)
		return processResult{nack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	state, err := c.idempotency.Claim(ctx, notificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch state {
	case idempotency.StateDone:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case idempotency.StateInFlight:
		c.logg.Info(logCtx, "event held by another delivery")
		return processResult{nack: true}
	}

	notifications, err := c.build(ctx, parsedType, payload)
	if err == nil {
		for i := range notifications {
			notifications[i].EventID = &eventID
		}
		err = c.repo.CreateAll(ctx, notifications)
	}
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		if relErr := c.idempotency.Release(ctx, notificationConsumer, eventID); relErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "release_error", relErr.Error()), "idempotency release failed")
		}
		return processResult{nack: true}
	}
	for _, n := range notifications {
		c.metrics.NotificationDelivered(string(n.Type))
	}
	if err := c.idempotency.Complete(ctx, notificationConsumer, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "complete_error", err.Error()), "idempotency completion failed")
	}

	logCtx = c.logg.WithField(logCtx, "recipients", len(notifications))
	c.logg.Info(logCtx, "notifications delivered")
	return processResult{ack: true}
}

// build maps one event to the notifications of everyone it concerns.
func (c *Consumer) build(ctx context.Context, eventType enums.OutboxEventType, payload interface{}) ([]models.Notification, error) {
	switch p := payload.(type) {
	case *payloads.PrescriptionRequestedEvent:
		var out []models.Notification
		for _, pharmacyID := range p.TargetPharmacyIDs {
			n, err := c.toPharmacy(ctx, pharmacyID, enums.NotificationTypePrescription,
				"New prescription request",
				"A customer is asking for a quote on a prescription.",
				fmt.Sprintf("/pharmacy/prescriptions/%s", p.PrescriptionID))
			if err != nil {
				return nil, err
			}
			out = append(out, n...)
		}
		return out, nil

	case *payloads.QuoteSubmittedEvent:
		title := "New quote received"
		message := fmt.Sprintf("%s quoted %d Kz for your prescription.", p.PharmacyName, p.TotalPrice)
		if p.Status == enums.QuoteStatusRejected {
			title = "Pharmacy cannot fulfil your prescription"
			message = fmt.Sprintf("%s declined: %s", p.PharmacyName, p.RejectionReason)
		}
		return []models.Notification{toUser(p.CustomerID, enums.NotificationTypeQuote, title, message,
			fmt.Sprintf("/prescriptions/%s", p.PrescriptionID))}, nil

	case *payloads.QuoteAcceptedEvent:
		out, err := c.toPharmacy(ctx, p.PharmacyID, enums.NotificationTypeQuote,
			"Quote accepted",
			fmt.Sprintf("Your quote was accepted. Order total %d Kz.", p.Total),
			fmt.Sprintf("/pharmacy/orders/%s", p.OrderID))
		if err != nil {
			return nil, err
		}
		for _, loser := range p.RejectedPharmacyIDs {
			n, err := c.toPharmacy(ctx, loser, enums.NotificationTypeQuote,
				"Quote not selected",
				"The customer chose a competing offer.",
				fmt.Sprintf("/pharmacy/prescriptions/%s", p.PrescriptionID))
			if err != nil {
				return nil, err
			}
			out = append(out, n...)
		}
		return out, nil

	case *payloads.QuoteDeclinedEvent:
		return c.toPharmacy(ctx, p.PharmacyID, enums.NotificationTypeQuote,
			"Quote declined",
			"The customer declined your quote.",
			fmt.Sprintf("/pharmacy/prescriptions/%s", p.PrescriptionID))

	case *payloads.OrderCreatedEvent:
		if p.QuoteID != nil {
			// the pharmacy already heard about it through quote_accepted
			return nil, nil
		}
		return c.toPharmacy(ctx, p.PharmacyID, enums.NotificationTypeOrder,
			"New order",
			fmt.Sprintf("New %s order of %d Kz.", p.Type, p.Total),
			fmt.Sprintf("/pharmacy/orders/%s", p.OrderID))

	case *payloads.OrderStatusChangedEvent:
		title := "Order updated"
		message := fmt.Sprintf("Order status changed to %s.", p.To)
		if p.ActorRole == enums.ActorRoleCustomer {
			return c.toPharmacy(ctx, p.PharmacyID, enums.NotificationTypeOrder, title, message,
				fmt.Sprintf("/pharmacy/orders/%s", p.OrderID))
		}
		return []models.Notification{toUser(p.CustomerID, enums.NotificationTypeOrder, title, message,
			fmt.Sprintf("/orders/%s", p.OrderID))}, nil

	case *payloads.SettlementEvent:
		return c.buildSettlement(ctx, eventType, p)
	}
	return nil, nil
}

func (c *Consumer) buildSettlement(ctx context.Context, eventType enums.OutboxEventType, p *payloads.SettlementEvent) ([]models.Notification, error) {
	period := fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	switch eventType {
	case enums.EventSettlementReported:
		role := enums.ActorRoleAdmin
		return []models.Notification{{
			AudienceRole: &role,
			Type:         enums.NotificationTypeSettlement,
			Title:        "Commission payment reported",
			Message:      fmt.Sprintf("A pharmacy reported paying %d Kz in commission for %s.", p.Amount, period),
			Link:         stringPtr(fmt.Sprintf("/admin/settlements?pharmacyId=%s&year=%d&month=%d", p.PharmacyID, p.Year, p.Month)),
		}}, nil
	case enums.EventSettlementConfirmed:
		return c.toPharmacy(ctx, p.PharmacyID, enums.NotificationTypeSettlement,
			"Commission payment confirmed",
			fmt.Sprintf("Your commission for %s is settled.", period),
			"/pharmacy/settlements")
	case enums.EventSettlementReminder:
		return c.toPharmacy(ctx, p.PharmacyID, enums.NotificationTypeSettlement,
			"Commission due",
			fmt.Sprintf("%d Kz in commission for %s is still pending.", p.Amount, period),
			"/pharmacy/settlements")
	}
	return nil, nil
}

// toPharmacy addresses the pharmacy owner. A pharmacy that no longer exists
// has nobody to notify.
func (c *Consumer) toPharmacy(ctx context.Context, pharmacyID uuid.UUID, kind enums.NotificationType, title, message, link string) ([]models.Notification, error) {
	owner, err := c.owners.OwnerOf(ctx, pharmacyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(c.logg.WithPharmacyID(ctx, pharmacyID.String()), "notification target pharmacy missing")
			return nil, nil
		}
		return nil, err
	}
	return []models.Notification{toUser(owner, kind, title, message, link)}, nil
}

func toUser(userID uuid.UUID, kind enums.NotificationType, title, message, link string) models.Notification {
	return models.Notification{
		UserID:  &userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    stringPtr(link),
	}
}

func stringPtr(value string) *string {
	return &value
}
