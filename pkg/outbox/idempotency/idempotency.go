// Package idempotency deduplicates redelivered domain events per consumer.
//
// A consumer first claims an event with a short lease, then completes it
// once its side effects are committed. A worker that dies mid-event leaves
// only the lease behind, so the broker's redelivery can run it again once
// the lease lapses.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/redis"
)

const (
	markerInFlight = "processing"
	markerDone     = "done"

	defaultLease = 2 * time.Minute
)

// State is the outcome of a claim.
type State int

const (
	// StateClaimed means the caller owns the event and must Complete or Release it.
	StateClaimed State = iota
	// StateInFlight means another delivery holds the lease.
	StateInFlight
	// StateDone means the event was already handled.
	StateDone
)

// Store is the Redis surface the manager needs.
type Store interface {
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Manager tracks claimed and finished event IDs under
// `fl:idempotency:evt:processed:<consumer>:<event_id>`.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

// NewManager builds a guard whose finished markers live for ttl.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := defaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Claim takes the lease on eventID for consumer unless someone already has it.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (State, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return StateInFlight, err
	}
	claimed, err := m.store.SetNX(ctx, key, markerInFlight, m.lease)
	if err != nil {
		return StateInFlight, err
	}
	if claimed {
		return StateClaimed, nil
	}
	marker, err := m.store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.ErrNil) {
		return StateInFlight, err
	}
	if marker == markerDone {
		return StateDone, nil
	}
	// the lease may have lapsed between SETNX and GET; redelivery sorts it out
	return StateInFlight, nil
}

// Complete marks a claimed event as handled for the full TTL.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Release drops a claim so the next delivery can retry the event.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:processed:%s", consumer), eventID.String()), nil
}
