package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/outbox/registry"
)

// outcome is what happened to one outbox row; it doubles as the metric label.
type outcome string

const (
	outcomePublished    outcome = "published"
	outcomeRetry        outcome = "failed"
	outcomeDeadLettered outcome = "dead_lettered"
)

// settle publishes one row and records the result on it. Only bookkeeping
// failures are returned; publish failures are retried or dead-lettered.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		// A row the registry cannot decode will never publish.
		err = registry.NewNonRetryableError(err)
	} else {
		fields["event_id"] = resolved.Envelope.EventID
		fields["topic"] = resolved.Descriptor.Topic
		err = s.publish(ctx, event, resolved)
	}

	result, reason := s.classify(event, err)
	logCtx := s.logg.WithFields(ctx, fields)
	switch result {
	case outcomePublished:
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(logCtx, "outbox event published")

	case outcomeRetry:
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed")

	case outcomeDeadLettered:
		if reason == enums.OutboxDLQReasonMaxAttempts {
			err = fmt.Errorf("max publish attempts reached: %w", err)
		}
		if dlqErr := s.deadLetter(tx, event, reason, err); dlqErr != nil {
			return dlqErr
		}
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":        err.Error(),
			"error_reason": reason,
		}), "outbox event will not be retried")
	}
	s.metrics.OutboxPublish(string(result))
	return nil
}

// classify decides the fate of a row given the publish error, if any.
func (s *Service) classify(event models.OutboxEvent, err error) (outcome, enums.OutboxDLQErrorReason) {
	switch {
	case err == nil:
		return outcomePublished, ""
	case isPermanent(err):
		return outcomeDeadLettered, enums.OutboxDLQReasonNonRetryable
	case event.AttemptCount+1 >= s.maxAttempts:
		return outcomeDeadLettered, enums.OutboxDLQReasonMaxAttempts
	default:
		return outcomeRetry, ""
	}
}

// isPermanent reports errors that no amount of retrying will fix.
func isPermanent(err error) bool {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return true
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return true
	}
	return false
}

func (s *Service) deadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// publish sends the stored payload verbatim with routing attributes and
// waits for the broker's ack.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherOf(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}
