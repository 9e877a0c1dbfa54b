package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmolink/farmolink-backend/pkg/redis"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.ErrNil
	}
	return value, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "fl:idempotency:" + scope + ":" + id
}

func TestClaimCompleteLifecycle(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()
	key := "fl:idempotency:evt:processed:notifications-worker:" + eventID.String()

	state, err := manager.Claim(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, state)
	assert.Equal(t, markerInFlight, store.values[key])
	assert.Equal(t, defaultLease, store.ttls[key])

	state, err = manager.Claim(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.Equal(t, StateInFlight, state)

	require.NoError(t, manager.Complete(ctx, "notifications-worker", eventID))
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	state, err = manager.Claim(ctx, "notifications-worker", eventID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
}

func TestReleaseAllowsRetry(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = manager.Claim(ctx, "c", eventID)
	require.NoError(t, err)
	require.NoError(t, manager.Release(ctx, "c", eventID))

	state, err := manager.Claim(ctx, "c", eventID)
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, state)
}

func TestLeaseNeverOutlivesTTL(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, manager.lease)
}

func TestClaimValidatesInput(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = manager.Claim(context.Background(), "", uuid.New())
	require.Error(t, err)
	_, err = manager.Claim(context.Background(), "c", uuid.Nil)
	require.Error(t, err)

	store.err = errors.New("redis down")
	_, err = manager.Claim(context.Background(), "c", uuid.New())
	require.Error(t, err)

	_, err = NewManager(nil, time.Hour)
	require.Error(t, err)
	_, err = NewManager(store, -time.Second)
	require.Error(t, err)
}
