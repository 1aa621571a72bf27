package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-process tooling.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int64]User
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]User)}
}

// Put inserts or replaces a user projection.
func (s *MemoryStore) Put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// GetByEmail loads a user by normalized email.
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (User, error) {
	norm := NormalizeEmail(email)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if NormalizeEmail(u.Email) == norm {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

// GetByID loads a user by the legacy numeric identifier.
func (s *MemoryStore) GetByID(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// GetByAuthID loads a user by the canonical UUID identity. The nil UUID is
// never found: an unassigned auth id is NULL in the durable store, and NULL
// matches no lookup parameter there either.
func (s *MemoryStore) GetByAuthID(_ context.Context, authID uuid.UUID) (User, error) {
	if authID == uuid.Nil {
		return User{}, ErrUserNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.AuthID == authID {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

// BackfillAuthID assigns authID iff the user has none yet.
func (s *MemoryStore) BackfillAuthID(_ context.Context, id int64, authID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.AuthID == uuid.Nil {
		u.AuthID = authID
		s.users[id] = u
	}
	return nil
}
