package claim

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used in tests and single-node
// deployments without a database. One mutex guards the whole table, which
// gives TryClaim the same exactly-one-winner guarantee as the conditional
// upsert.
type MemoryStore struct {
	mu    sync.Mutex
	units map[string]*Unit
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{units: make(map[string]*Unit), now: time.Now}
}

func (s *MemoryStore) TryClaim(_ context.Context, kind, subject string, maxAttempts int32, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := kind + ":" + subject
	u, ok := s.units[key]
	if !ok {
		s.units[key] = &Unit{Kind: kind, Subject: subject, Status: StatusPending, ClaimedAt: &now}
		return true, nil
	}

	switch {
	case u.Status == StatusFailed && u.Attempts < maxAttempts:
	case u.Status == StatusPending && u.ClaimedAt != nil && now.Sub(*u.ClaimedAt) > staleAfter:
	default:
		return false, nil
	}

	u.Status = StatusPending
	u.ClaimedAt = &now
	return true, nil
}

func (s *MemoryStore) MarkDone(_ context.Context, kind, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[kind+":"+subject]
	if !ok || u.Status != StatusPending {
		return ErrNotClaimed
	}
	now := s.now()
	u.Status = StatusSent
	u.SentAt = &now
	u.LastError = ""
	return nil
}

func (s *MemoryStore) Release(_ context.Context, kind, subject, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[kind+":"+subject]
	if !ok || u.Status != StatusPending {
		return ErrNotClaimed
	}
	u.Status = StatusFailed
	u.Attempts++
	u.LastError = lastError
	u.ClaimedAt = nil
	return nil
}

func (s *MemoryStore) Get(_ context.Context, kind, subject string) (Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[kind+":"+subject]
	if !ok {
		return Unit{}, ErrUnitNotFound
	}
	return *u, nil
}

func (s *MemoryStore) Candidates(_ context.Context, maxAttempts int32, staleAfter time.Duration, limit int32) ([]Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var units []Unit
	for _, u := range s.units {
		switch {
		case u.Status == StatusFailed && u.Attempts < maxAttempts:
		case u.Status == StatusPending && u.ClaimedAt != nil && now.Sub(*u.ClaimedAt) > staleAfter:
		default:
			continue
		}
		units = append(units, *u)
	}
	// Least-failed units retry first.
	sort.Slice(units, func(i, j int) bool {
		if units[i].Attempts != units[j].Attempts {
			return units[i].Attempts < units[j].Attempts
		}
		return units[i].Key() < units[j].Key()
	})
	if limit > 0 && int32(len(units)) > limit {
		units = units[:limit]
	}
	return units, nil
}
