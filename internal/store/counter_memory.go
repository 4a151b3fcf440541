package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/contact-intake/internal/ratelimit"
)

// CounterMemoryStore is an in-memory implementation of ratelimit.CounterStore.
// Expired counters are dropped lazily on access.
type CounterMemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

type counter struct {
	value     int64
	expiresAt time.Time // zero means no expiry
}

// NewCounterMemoryStore creates a new in-memory counter store. A nil clock uses time.Now.
func NewCounterMemoryStore(now func() time.Time) *CounterMemoryStore {
	if now == nil {
		now = time.Now
	}

	return &CounterMemoryStore{
		counters: make(map[string]*counter),
		now:      now,
	}
}

func (s *CounterMemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.live(key)
	if c == nil {
		c = &counter{}
		s.counters[key] = c
	}

	c.value++

	return c.value, nil
}

func (s *CounterMemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.live(key); c != nil {
		c.expiresAt = s.now().Add(ttl)
	}

	return nil
}

func (s *CounterMemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.live(key)

	switch {
	case c == nil:
		return -2, nil
	case c.expiresAt.IsZero():
		return -1, nil
	default:
		return c.expiresAt.Sub(s.now()), nil
	}
}

func (s *CounterMemoryStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.live(key); c != nil {
		return c.value, nil
	}

	return 0, nil
}

// live returns the counter for key unless it has expired. Callers must hold s.mu.
func (s *CounterMemoryStore) live(key string) *counter {
	c, ok := s.counters[key]
	if !ok {
		return nil
	}

	if !c.expiresAt.IsZero() && !s.now().Before(c.expiresAt) {
		delete(s.counters, key)

		return nil
	}

	return c
}

var _ ratelimit.CounterStore = (*CounterMemoryStore)(nil)
