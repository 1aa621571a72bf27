package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryStore_GetByAuthID_NilNeverMatches(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(User{ID: 1, AuthID: uuid.Nil, Email: "legacy@example.com"})

	// An unassigned auth id is NULL in the durable store; NULL never
	// matches a lookup parameter, and the memory store must agree.
	if _, err := s.GetByAuthID(ctx, uuid.Nil); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetByAuthID(nil): %v, want ErrUserNotFound", err)
	}
}

func TestMemoryStore_BackfillAuthID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(User{ID: 1, AuthID: uuid.Nil, Email: "legacy@example.com"})

	first := uuid.New()
	if err := s.BackfillAuthID(ctx, 1, first); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	u, err := s.GetByAuthID(ctx, first)
	if err != nil || u.ID != 1 {
		t.Fatalf("lookup after backfill: user=%+v err=%v", u, err)
	}

	// Idempotent: a second backfill never reassigns.
	if err := s.BackfillAuthID(ctx, 1, uuid.New()); err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	u, _ = s.GetByID(ctx, 1)
	if u.AuthID != first {
		t.Fatalf("auth id reassigned: %v, want %v", u.AuthID, first)
	}

	if err := s.BackfillAuthID(ctx, 99, uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("backfill unknown user: %v, want ErrUserNotFound", err)
	}
}
