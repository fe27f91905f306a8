package cache

import (
	"fmt"

	"go.uber.org/zap"

	appsync "github.com/erp/marketsync/internal/application/sync"
	"github.com/erp/marketsync/internal/infrastructure/config"
)

// EventStoreFactory picks the webhook dedupe backend at startup: Redis when
// reachable, otherwise an in-memory store if fallback is allowed.
type EventStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// EventStoreFactoryOption is a functional option for configuring the factory
type EventStoreFactoryOption func(*EventStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) EventStoreFactoryOption {
	return func(f *EventStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) EventStoreFactoryOption {
	return func(f *EventStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewEventStoreFactory creates a new factory
func NewEventStoreFactory(cfg config.RedisConfig, opts ...EventStoreFactoryOption) *EventStoreFactory {
	f := &EventStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateStore tries Redis first and falls back to the in-memory store when
// Redis is unreachable and fallback is allowed. An in-memory store does not
// share dedupe state across instances, so the fallback is logged loudly.
func (f *EventStoreFactory) CreateStore() (appsync.IdempotencyStore, error) {
	store, err := NewRedisEventStore(f.redisConfig.Addr(), f.redisConfig.Password, f.redisConfig.DB)
	if err == nil {
		f.logger.Info("using redis webhook event store")
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("cache: redis required for webhook dedupe but unavailable: %w", err)
	}

	f.logger.Warn("redis unavailable, falling back to in-memory webhook event store; duplicate deliveries may be reprocessed across instances",
		zap.Error(err),
	)
	return NewInMemoryEventStore(), nil
}
