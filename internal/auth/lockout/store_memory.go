package lockout

import (
	"context"
	"sync"
	"time"

	"mutuelle/pkg/requestcontext"
)

type counter struct {
	failures  int
	expiresAt time.Time
}

type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]counter
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{counters: make(map[string]counter)}
}

func (s *InMemoryStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = counter{expiresAt: now.Add(window)}
	}
	c.failures++
	s.counters[key] = c
	return c.failures, nil
}

func (s *InMemoryStore) Failures(ctx context.Context, key string) (int, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		return 0, nil
	}
	return c.failures, nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}
