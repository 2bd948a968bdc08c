package eventsource

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/quest/pkg/api"
)

// RedisSource implements Source using a single Redis list with key
// <prefix>events. Values are gob-encoded Event structs, pushed with LPUSH
// and consumed with BRPOP so consumers block instead of polling.
type RedisSource struct {
	client *redis.Client
	key    string
}

// NewRedisSource constructs a Redis-backed Source.
// prefix is optional but recommended (e.g. "quest:").
func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = "quest:"
	}
	return &RedisSource{
		client: client,
		key:    prefix + "events",
	}
}

var _ Source = (*RedisSource)(nil)

func (s *RedisSource) Publish(ctx context.Context, ev api.Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, s.key, data).Err()
}

// Receive blocks until a decodable event is available or ctx is cancelled.
// It never returns a nil event with a nil error; malformed entries are
// logged and skipped so one bad message cannot stall the stream.
func (s *RedisSource) Receive(ctx context.Context) (*api.Event, error) {
	for {
		// BRPop returns [key, value].
		res, err := s.client.BRPop(ctx, 0, s.key).Result()
		if err != nil {
			return nil, err
		}
		if len(res) != 2 {
			slog.Warn("redis event source: BRPop returned unexpected result", slog.Int("len", len(res)))
			continue
		}
		ev, err := DecodeEvent([]byte(res[1]))
		if err != nil {
			slog.Warn("redis event source: dropping undecodable event", slog.Any("error", err))
			continue
		}
		return ev, nil
	}
}

func (s *RedisSource) Len() int {
	n, err := s.client.LLen(context.Background(), s.key).Result()
	if err != nil {
		slog.Warn("redis event source: LLEN failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
