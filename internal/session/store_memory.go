package session

import (
	"context"
	"sync"
	"time"
)

const memoryShards = 64

// MemoryStore is an in-memory Store for tests and single-process use.
//
// It implements the documented advisory-lock fallback: a sharded mutex keyed
// by a hash of the user identity, held only for the revoke+insert sequence.
type MemoryStore struct {
	shards [memoryShards]sync.Mutex

	mu   sync.RWMutex
	rows map[string]*Row // token hash -> row
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Row)}
}

func (s *MemoryStore) shardFor(userID int64) *sync.Mutex {
	return &s.shards[uint64(userID)%memoryShards]
}

// CreateExclusive serializes per user via the shard mutex, then revokes and
// inserts under the row lock.
func (s *MemoryStore) CreateExclusive(_ context.Context, row Row, singleSession bool) error {
	shard := s.shardFor(row.UserID)
	shard.Lock()
	defer shard.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if singleSession {
		for _, r := range s.rows {
			if r.UserID == row.UserID && r.Active(row.IssuedAt) {
				at := row.IssuedAt
				r.RevokedAt = &at
			}
		}
	}

	// Upsert on token-hash collision, reviving the row.
	cp := row
	cp.RevokedAt = nil
	s.rows[row.TokenHash] = &cp
	return nil
}

// RevokeByTokenHash revokes a single session (idempotent).
func (s *MemoryStore) RevokeByTokenHash(_ context.Context, now time.Time, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[hash]
	if !ok || r.RevokedAt != nil {
		return false, nil
	}
	at := now
	r.RevokedAt = &at
	return true, nil
}

// RevokeAllForUser revokes all live sessions of a user (idempotent).
func (s *MemoryStore) RevokeAllForUser(_ context.Context, now time.Time, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.rows {
		if r.UserID == userID && r.Active(now) {
			at := now
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

// CountActiveForUser counts the user's live sessions.
func (s *MemoryStore) CountActiveForUser(_ context.Context, now time.Time, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.rows {
		if r.UserID == userID && r.Active(now) {
			n++
		}
	}
	return n, nil
}

// CountActive counts live sessions across all users.
func (s *MemoryStore) CountActive(_ context.Context, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.rows {
		if r.Active(now) {
			n++
		}
	}
	return n, nil
}
