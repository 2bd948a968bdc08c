package eventsource

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/quest/pkg/api"
)

func newRedisSource(t *testing.T) *RedisSource {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisSource(client, "quest-test:")
}

func TestRedisSource_PublishReceive(t *testing.T) {
	s := newRedisSource(t)
	ctx := context.Background()

	events := []api.Event{
		{ID: "ev-1", Type: "OrderPlaced", Version: "v1", CorrelationKey: "O1"},
		{ID: "ev-2", Type: "PaymentProcessed", CorrelationKey: "O1", Payload: "receipt"},
	}
	for _, ev := range events {
		require.NoError(t, s.Publish(ctx, ev))
	}

	require.Equal(t, 2, s.Len())

	for _, want := range events {
		got, err := s.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, want.ID, got.ID)
		require.Equal(t, want.Type, got.Type)
		require.Equal(t, want.CorrelationKey, got.CorrelationKey)
	}

	require.Equal(t, 0, s.Len())
}

func TestRedisSource_SkipsUndecodableEntries(t *testing.T) {
	s := newRedisSource(t)
	ctx := context.Background()

	require.NoError(t, s.client.LPush(ctx, s.key, "not a gob payload").Err())
	require.NoError(t, s.Publish(ctx, api.Event{ID: "ev-ok", Type: "OrderPlaced", CorrelationKey: "O1"}))

	got, err := s.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "ev-ok", got.ID)
	require.Equal(t, 0, s.Len())
}
