package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testService(t *testing.T, cfg Config) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestRecord_SingleSessionRevokesPrevious(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, Config{SingleSession: true})

	exp := time.Now().Add(time.Hour)
	if eff := svc.Record(ctx, 1, "token-a", exp, ClientMeta{}); !eff.OK {
		t.Fatalf("Record a: %v", eff.Err)
	}
	if eff := svc.Record(ctx, 1, "token-b", exp, ClientMeta{}); !eff.OK {
		t.Fatalf("Record b: %v", eff.Err)
	}

	n, err := svc.CountActiveForUser(ctx, 1)
	if err != nil {
		t.Fatalf("CountActiveForUser: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 active session, got %d", n)
	}
}

func TestRecord_MultiSessionModeKeepsBoth(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, Config{SingleSession: false})

	exp := time.Now().Add(time.Hour)
	_ = svc.Record(ctx, 1, "token-a", exp, ClientMeta{})
	_ = svc.Record(ctx, 1, "token-b", exp, ClientMeta{})

	n, err := svc.CountActiveForUser(ctx, 1)
	if err != nil {
		t.Fatalf("CountActiveForUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 active sessions, got %d", n)
	}
}

func TestRecord_ConcurrentLoginsLeaveOneActive(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, Config{SingleSession: true})

	const logins = 32
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eff := svc.Record(ctx, 7, fmt.Sprintf("token-%d", i), exp, ClientMeta{})
			if !eff.OK {
				t.Errorf("Record %d: %v", i, eff.Err)
			}
		}(i)
	}
	wg.Wait()

	n, err := svc.CountActiveForUser(ctx, 7)
	if err != nil {
		t.Fatalf("CountActiveForUser: %v", err)
	}
	if n != 1 {
		t.Fatalf("single-session invariant violated: %d active rows", n)
	}
}

func TestRecord_DifferentUsersIndependent(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, Config{SingleSession: true})

	exp := time.Now().Add(time.Hour)
	var wg sync.WaitGroup
	for u := int64(1); u <= 8; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			_ = svc.Record(ctx, u, fmt.Sprintf("token-user-%d", u), exp, ClientMeta{})
		}(u)
	}
	wg.Wait()

	total, err := svc.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if total != 8 {
		t.Fatalf("expected 8 active sessions across users, got %d", total)
	}
}

func TestRevokeByToken_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, DefaultConfig())

	exp := time.Now().Add(time.Hour)
	_ = svc.Record(ctx, 1, "token-a", exp, ClientMeta{})

	n, err := svc.RevokeByToken(ctx, "token-a")
	if err != nil {
		t.Fatalf("RevokeByToken: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revocation, got %d", n)
	}

	n, err = svc.RevokeByToken(ctx, "token-a")
	if err != nil {
		t.Fatalf("RevokeByToken 2nd: %v", err)
	}
	if n != 0 {
		t.Fatalf("second revoke must be a no-op, got %d", n)
	}

	if n, _ := svc.RevokeByToken(ctx, "never-issued"); n != 0 {
		t.Fatalf("unknown token revoke must be a no-op, got %d", n)
	}
}

func TestRevokeAllForUser_CountsRows(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, Config{SingleSession: false})

	exp := time.Now().Add(time.Hour)
	_ = svc.Record(ctx, 1, "token-a", exp, ClientMeta{})
	_ = svc.Record(ctx, 1, "token-b", exp, ClientMeta{})
	_ = svc.Record(ctx, 2, "token-c", exp, ClientMeta{})

	n, err := svc.RevokeAllForUser(ctx, 1)
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revocations, got %d", n)
	}

	left, _ := svc.CountActiveForUser(ctx, 2)
	if left != 1 {
		t.Fatalf("other user's session must survive, got %d", left)
	}
}

func TestUpsert_RevivesRevokedRowOnHashCollision(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	exp := time.Now().Add(time.Hour)
	row := Row{ID: "01A", UserID: 1, TokenHash: "h", IssuedAt: time.Now(), ExpiresAt: exp}
	if err := store.CreateExclusive(ctx, row, true); err != nil {
		t.Fatalf("CreateExclusive: %v", err)
	}
	if _, err := store.RevokeByTokenHash(ctx, time.Now(), "h"); err != nil {
		t.Fatalf("RevokeByTokenHash: %v", err)
	}

	// Same hash re-inserted: the row is revived, not duplicated.
	row.IssuedAt = time.Now()
	if err := store.CreateExclusive(ctx, row, true); err != nil {
		t.Fatalf("CreateExclusive 2nd: %v", err)
	}
	n, err := store.CountActiveForUser(ctx, time.Now(), 1)
	if err != nil {
		t.Fatalf("CountActiveForUser: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 active row after revive, got %d", n)
	}
}
