package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore abstracts counter persistence. Every mutation is a single
// atomic operation, so concurrent attempts on the same key are all counted;
// the limiter never does a read-modify-write cycle of its own.
type CounterStore interface {
	// Incr adds one attempt to key and returns the new count. The first
	// increment starts a window of ttl; the count drops to zero when the
	// window elapses.
	Incr(ctx context.Context, key string, ttl time.Duration) (int, error)

	// Count returns the current attempt count (0 once the window elapsed).
	Count(ctx context.Context, key string) (int, error)

	// Lock refuses the key for ttl.
	Lock(ctx context.Context, key string, ttl time.Duration) error

	// LockRemaining returns how long the key stays refused, 0 when unlocked.
	LockRemaining(ctx context.Context, key string) (time.Duration, error)

	// Reset clears the counter and any lock for key.
	Reset(ctx context.Context, key string) error
}

// MemoryStore is the process-local CounterStore. One mutex serializes all
// mutation, which gives Incr the same lost-update-free behavior as the
// shared-cache store.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counterEntry
	locks    map[string]time.Time
	now      func() time.Time
}

type counterEntry struct {
	count     int
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]counterEntry),
		locks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.counters[key]
	if !ok || now.After(e.expiresAt) {
		e = counterEntry{expiresAt: now.Add(ttl)}
	}
	e.count++
	s.counters[key] = e
	return e.count, nil
}

func (s *MemoryStore) Count(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.counters, key)
		return 0, nil
	}
	return e.count, nil
}

func (s *MemoryStore) Lock(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[key] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) LockRemaining(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.locks[key]
	if !ok {
		return 0, nil
	}
	rem := until.Sub(s.now())
	if rem <= 0 {
		delete(s.locks, key)
		return 0, nil
	}
	return rem, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	delete(s.locks, key)
	return nil
}
