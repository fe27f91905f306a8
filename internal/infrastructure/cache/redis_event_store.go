package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appsync "github.com/erp/marketsync/internal/application/sync"
)

const defaultEventKeyPrefix = "marketsync:webhook:event:"

// RedisEventStore implements the webhook idempotency store on Redis so that
// multiple instances share dedupe state for marketplace event deliveries.
type RedisEventStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ appsync.IdempotencyStore = (*RedisEventStore)(nil)

// NewRedisEventStore connects to Redis and verifies the connection.
func NewRedisEventStore(addr, password string, db int) (*RedisEventStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to connect to redis: %w", err)
	}

	return &RedisEventStore{
		client:    client,
		keyPrefix: defaultEventKeyPrefix,
	}, nil
}

// NewRedisEventStoreWithClient wraps an existing client, useful when the
// client is shared across components or injected in tests.
func NewRedisEventStoreWithClient(client *redis.Client, keyPrefix string) *RedisEventStore {
	if keyPrefix == "" {
		keyPrefix = defaultEventKeyPrefix
	}
	return &RedisEventStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed records an event id with a TTL using SETNX, so the check and
// the write are a single atomic operation even across instances.
func (s *RedisEventStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	newlySet, err := s.client.SetNX(ctx, s.keyPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to mark event processed: %w", err)
	}
	return newlySet, nil
}

// IsProcessed reports whether an event id is currently marked.
func (s *RedisEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check event: %w", err)
	}
	return exists > 0, nil
}

// Close closes the underlying Redis client.
func (s *RedisEventStore) Close() error {
	return s.client.Close()
}
