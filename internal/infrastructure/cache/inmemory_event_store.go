package cache

import (
	"context"
	"sync"
	"time"

	appsync "github.com/erp/marketsync/internal/application/sync"
)

// markedEvent records when a processed event id stops being remembered.
type markedEvent struct {
	expiresAt time.Time
}

// InMemoryEventStore implements the webhook idempotency store with a local map.
// Suitable for single-instance deployments and tests; state is lost on restart,
// so duplicate deliveries after a restart will be reprocessed (the reconciler
// upsert makes that harmless).
type InMemoryEventStore struct {
	mu        sync.RWMutex
	events    map[string]markedEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ appsync.IdempotencyStore = (*InMemoryEventStore)(nil)

// NewInMemoryEventStore creates the store and starts a background sweeper
// that evicts expired event ids.
func NewInMemoryEventStore() *InMemoryEventStore {
	store := &InMemoryEventStore{
		events:   make(map[string]markedEvent),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.sweepLoop()

	return store
}

// MarkProcessed records an event id for the given TTL. Returns true if the id
// was newly recorded, false if it was already marked and has not expired.
func (s *InMemoryEventStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.events[eventID]; exists && time.Now().Before(e.expiresAt) {
		return false, nil
	}

	s.events[eventID] = markedEvent{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// IsProcessed reports whether an event id is currently marked.
func (s *InMemoryEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.events[eventID]
	if !exists || time.Now().After(e.expiresAt) {
		return false, nil
	}
	return true, nil
}

// Close stops the sweeper. Safe to call multiple times.
func (s *InMemoryEventStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of tracked event ids, expired or not.
func (s *InMemoryEventStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *InMemoryEventStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryEventStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for eventID, e := range s.events {
		if now.After(e.expiresAt) {
			delete(s.events, eventID)
		}
	}
}
