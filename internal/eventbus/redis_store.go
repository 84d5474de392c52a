package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	// HistoryKey is the capped list key from the external interface
	// table (§6, "Persisted state").
	HistoryKey = "sre-sentinel-events-history"

	// Channel is the pub/sub channel name events are mirrored to so
	// other processes subscribed to it receive each event live; history
	// is read from the HistoryKey list, not from this channel.
	Channel = "sre-sentinel-events"
)

// RedisStore is the C9 durable Store backed by Redis LPUSH/LTRIM for the
// capped history and PUBLISH for cross-process fan-out, grounded on the
// go-redis client usage pattern from the sibling example's integration
// tests.
type RedisStore struct {
	client *redis.Client
	limit  int
}

// NewRedisStore constructs a RedisStore over client, capped at limit
// entries (HistoryLimit if <= 0).
func NewRedisStore(client *redis.Client, limit int) *RedisStore {
	if limit <= 0 {
		limit = HistoryLimit
	}
	return &RedisStore{client: client, limit: limit}
}

// NewRedisClient builds a redis.Client from the host/port/password/db
// tuple named in the external interface table's REDIS_* variables.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})
}

// Append LPUSHes the serialized event and LTRIMs the list to the cap,
// then PUBLISHes it for any other process subscribed to Channel.
func (r *RedisStore) Append(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, HistoryKey, payload)
	pipe.LTrim(ctx, HistoryKey, 0, int64(r.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist event history: %w", err)
	}

	if err := r.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// History returns the list contents, already newest-first per LPUSH
// ordering.
func (r *RedisStore) History(ctx context.Context) ([]domain.Event, error) {
	raw, err := r.client.LRange(ctx, HistoryKey, 0, int64(r.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read event history: %w", err)
	}

	events := make([]domain.Event, 0, len(raw))
	for _, item := range raw {
		var event domain.Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
