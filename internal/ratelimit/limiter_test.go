package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLimiter(t *testing.T, cfg Config) (*Limiter, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	l, err := New(cfg, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, store
}

func TestCheckAndConsume_DeniesAtThreshold(t *testing.T) {
	ctx := context.Background()
	l, _ := testLimiter(t, Config{MaxAttempts: 5, Window: time.Minute, Lockout: time.Hour})

	for i := 1; i <= 4; i++ {
		dec, err := l.CheckAndConsume(ctx, "login", KeyIP, "1.2.3.4")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("attempt %d: expected allowed", i)
		}
	}

	dec, err := l.CheckAndConsume(ctx, "login", KeyIP, "1.2.3.4")
	if err != nil {
		t.Fatalf("attempt 5: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("attempt 5: expected denied")
	}
	if dec.RetryAfter <= 0 {
		t.Fatalf("attempt 5: expected positive RetryAfter, got %v", dec.RetryAfter)
	}

	// 6th call is refused by the lockout, not the window.
	dec, err = l.CheckAndConsume(ctx, "login", KeyIP, "1.2.3.4")
	if err != nil {
		t.Fatalf("attempt 6: %v", err)
	}
	if dec.Allowed || dec.RetryAfter <= 0 {
		t.Fatalf("attempt 6: expected rate limited with RetryAfter > 0, got %+v", dec)
	}
}

func TestLockout_OutlivesWindow(t *testing.T) {
	ctx := context.Background()
	l, store := testLimiter(t, Config{MaxAttempts: 2, Window: time.Minute, Lockout: time.Hour})

	base := time.Now()
	store.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		if _, err := l.CheckAndConsume(ctx, "login", KeyIdentifier, "a@example.com"); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}

	// Window elapsed, lockout not: still denied.
	store.now = func() time.Time { return base.Add(5 * time.Minute) }
	dec, err := l.CheckAndConsume(ctx, "login", KeyIdentifier, "a@example.com")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected denial during lockout even after window elapsed")
	}

	// Lockout elapsed: attempts resume.
	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	dec, err = l.CheckAndConsume(ctx, "login", KeyIdentifier, "a@example.com")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowance after lockout elapsed")
	}
}

func TestReset_ClearsCountersAndLockout(t *testing.T) {
	ctx := context.Background()
	l, _ := testLimiter(t, Config{MaxAttempts: 2, Window: time.Minute, Lockout: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := l.CheckAndConsume(ctx, "login", KeyIP, "1.2.3.4"); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	if err := l.Reset(ctx, "login", KeyIP, "1.2.3.4"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	dec, err := l.CheckAndConsume(ctx, "login", KeyIP, "1.2.3.4")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected fresh allowance after reset")
	}

	n, err := l.Failures(ctx, "login", KeyIP, "1.2.3.4")
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 failure after reset+consume, got %d", n)
	}
}

func TestKeyings_AreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := testLimiter(t, Config{MaxAttempts: 2, Window: time.Minute, Lockout: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := l.CheckAndConsume(ctx, "login", KeyIP, "1.2.3.4"); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}

	dec, err := l.CheckAndConsume(ctx, "login", KeyIdentifier, "a@example.com")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("identifier keying must not be affected by ip lockout")
	}

	dec, err = l.CheckAndConsume(ctx, "login", KeyIP, "5.6.7.8")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("other addresses must not be affected")
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, error) {
	return 0, errors.New("store down")
}
func (failingStore) Count(context.Context, string) (int, error) {
	return 0, errors.New("store down")
}
func (failingStore) Lock(context.Context, string, time.Duration) error {
	return errors.New("store down")
}
func (failingStore) LockRemaining(context.Context, string) (time.Duration, error) {
	return 0, errors.New("store down")
}
func (failingStore) Reset(context.Context, string) error { return errors.New("store down") }

func TestStoreFailure_FailsOpen(t *testing.T) {
	l, err := New(DefaultConfig(), failingStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dec, err := l.CheckAndConsume(context.Background(), "login", KeyIP, "1.2.3.4")
	if err == nil {
		t.Fatalf("expected the store error to surface for logging")
	}
	if !dec.Allowed {
		t.Fatalf("a counter-store outage must not deny legitimate traffic")
	}
}

func TestCheckAndConsume_ConcurrentAttemptsAllCounted(t *testing.T) {
	ctx := context.Background()
	l, _ := testLimiter(t, Config{MaxAttempts: 50, Window: time.Minute, Lockout: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.CheckAndConsume(ctx, "login", KeyIP, "1.2.3.4")
		}()
	}
	wg.Wait()

	n, err := l.Failures(ctx, "login", KeyIP, "1.2.3.4")
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if n != 20 {
		t.Fatalf("expected all 20 concurrent attempts counted, got %d", n)
	}
}

func TestMemoryStore_IncrRestartsElapsedWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now()
	store.now = func() time.Time { return base }

	for i := 1; i <= 3; i++ {
		if n, err := store.Incr(ctx, "k", time.Minute); err != nil || n != i {
			t.Fatalf("incr %d: n=%d err=%v", i, n, err)
		}
	}

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	if n, err := store.Incr(ctx, "k", time.Minute); err != nil || n != 1 {
		t.Fatalf("incr after window: n=%d err=%v, want fresh count 1", n, err)
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	store, err := NewRedisStore(rdb)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	l, err := New(Config{MaxAttempts: 3, Window: time.Minute, Lockout: time.Hour}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		dec, err := l.CheckAndConsume(ctx, "login", KeyIP, "9.9.9.9")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("attempt %d: expected allowed", i)
		}
	}

	dec, err := l.CheckAndConsume(ctx, "login", KeyIP, "9.9.9.9")
	if err != nil {
		t.Fatalf("attempt 3: %v", err)
	}
	if dec.Allowed || dec.RetryAfter <= 0 {
		t.Fatalf("attempt 3: expected lockout, got %+v", dec)
	}

	// Denied while the lock key lives; expiry restores attempts.
	dec, err = l.CheckAndConsume(ctx, "login", KeyIP, "9.9.9.9")
	if err != nil || dec.Allowed {
		t.Fatalf("attempt during lockout: dec=%+v err=%v", dec, err)
	}

	mr.FastForward(2 * time.Hour)
	dec, err = l.CheckAndConsume(ctx, "login", KeyIP, "9.9.9.9")
	if err != nil {
		t.Fatalf("attempt after lockout: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowance after lockout expired")
	}

	if err := l.Reset(ctx, "login", KeyIP, "9.9.9.9"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, err := l.Failures(ctx, "login", KeyIP, "9.9.9.9"); err != nil || n != 0 {
		t.Fatalf("Failures after reset: n=%d err=%v", n, err)
	}
}
