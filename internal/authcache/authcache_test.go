package authcache

import (
	"context"
	"strings"
	"testing"
	"time"

	"authcore/internal/identity"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func sampleUser() identity.User {
	return identity.User{
		ID:        42,
		AuthID:    uuid.New(),
		Email:     "alice@example.com",
		Role:      "member",
		Status:    identity.StatusActive,
		Activated: true,
	}
}

func TestAuthContextCacheReadThrough(t *testing.T) {
	rdb, _ := testRedis(t)
	c := NewAuthContextCache(rdb, time.Minute)
	ctx := context.Background()
	u := sampleUser()

	if _, res := c.Get(ctx, u.AuthID); res.Hit || res.Err != nil {
		t.Fatalf("empty cache: got hit=%v err=%v, want clean miss", res.Hit, res.Err)
	}

	var e AuthContextEntry
	e.FromUser(u)
	if res := c.Set(ctx, e); !res.Hit || res.Err != nil {
		t.Fatalf("set: hit=%v err=%v", res.Hit, res.Err)
	}

	got, res := c.Get(ctx, u.AuthID)
	if !res.Hit {
		t.Fatalf("get after set: expected hit, err=%v", res.Err)
	}
	want := u
	want.PasswordHash = ""
	if got.User() != want {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got.User(), want)
	}
}

func TestAuthContextCacheInvalidate(t *testing.T) {
	rdb, _ := testRedis(t)
	c := NewAuthContextCache(rdb, time.Minute)
	ctx := context.Background()
	u := sampleUser()

	var e AuthContextEntry
	e.FromUser(u)
	c.Set(ctx, e)
	if res := c.Invalidate(ctx, u.AuthID); res.Err != nil {
		t.Fatalf("invalidate: %v", res.Err)
	}
	if _, res := c.Get(ctx, u.AuthID); res.Hit {
		t.Fatal("get after invalidate: expected miss")
	}
}

func TestAuthContextCacheOutageIsMiss(t *testing.T) {
	rdb, mr := testRedis(t)
	c := NewAuthContextCache(rdb, time.Minute)
	ctx := context.Background()
	u := sampleUser()

	mr.Close()

	_, res := c.Get(ctx, u.AuthID)
	if res.Hit {
		t.Fatal("outage get: expected miss")
	}
	if res.Err == nil {
		t.Fatal("outage get: expected recorded error")
	}
	var e AuthContextEntry
	e.FromUser(u)
	if res := c.Set(ctx, e); res.Hit || res.Err == nil {
		t.Fatalf("outage set: hit=%v err=%v", res.Hit, res.Err)
	}
}

func TestAuthContextCacheCorruptEntryIsMiss(t *testing.T) {
	rdb, mr := testRedis(t)
	c := NewAuthContextCache(rdb, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	mr.Set(authCtxKeyPrefix+id.String(), "{not json")

	_, res := c.Get(ctx, id)
	if res.Hit || res.Err == nil {
		t.Fatalf("corrupt entry: hit=%v err=%v, want miss with error", res.Hit, res.Err)
	}
}

func TestAuthContextCacheNilClient(t *testing.T) {
	c := NewAuthContextCache(nil, time.Minute)
	ctx := context.Background()
	u := sampleUser()

	if _, res := c.Get(ctx, u.AuthID); res.Hit || res.Err != nil {
		t.Fatalf("nil client get: hit=%v err=%v", res.Hit, res.Err)
	}
	var e AuthContextEntry
	e.FromUser(u)
	if res := c.Set(ctx, e); res.Hit || res.Err != nil {
		t.Fatalf("nil client set: hit=%v err=%v", res.Hit, res.Err)
	}
	if res := c.Invalidate(ctx, u.AuthID); res.Err != nil {
		t.Fatalf("nil client invalidate: %v", res.Err)
	}
}

func TestLoginUserCacheKeyHidesEmail(t *testing.T) {
	c := NewLoginUserCache(nil, time.Minute, []byte("cache-key-secret"))

	k := c.Key("Alice@Example.COM")
	if strings.Contains(strings.ToLower(k), "alice") {
		t.Fatalf("key leaks email: %q", k)
	}
	if k != c.Key("alice@example.com") {
		t.Fatal("key derivation is not normalization-stable")
	}

	// No secret degrades to plain SHA-256 but still hides the address.
	plain := NewLoginUserCache(nil, time.Minute, nil)
	if plain.Key("alice@example.com") == k {
		t.Fatal("keyed and unkeyed derivations should differ")
	}
}

func TestLoginUserCacheRoundTrip(t *testing.T) {
	rdb, mr := testRedis(t)
	c := NewLoginUserCache(rdb, time.Minute, []byte("cache-key-secret"))
	ctx := context.Background()
	u := sampleUser()

	var e LoginUserEntry
	e.FromUser(u)
	if res := c.Set(ctx, u.Email, e); !res.Hit || res.Err != nil {
		t.Fatalf("set: hit=%v err=%v", res.Hit, res.Err)
	}

	got, res := c.Get(ctx, "ALICE@example.com")
	if !res.Hit {
		t.Fatalf("get: expected hit, err=%v", res.Err)
	}
	if got.UserID != u.ID || got.AuthID != u.AuthID || !got.Activated {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	// The stored payload must not contain the address.
	for _, k := range mr.Keys() {
		raw, _ := mr.Get(k)
		if strings.Contains(strings.ToLower(raw), "alice") {
			t.Fatalf("payload leaks email: %q", raw)
		}
	}

	if res := c.Invalidate(ctx, u.Email); res.Err != nil {
		t.Fatalf("invalidate: %v", res.Err)
	}
	if _, res := c.Get(ctx, u.Email); res.Hit {
		t.Fatal("get after invalidate: expected miss")
	}
}

func TestLoginUserCacheOutageIsMiss(t *testing.T) {
	rdb, mr := testRedis(t)
	c := NewLoginUserCache(rdb, time.Minute, nil)
	ctx := context.Background()

	mr.Close()

	_, res := c.Get(ctx, "alice@example.com")
	if res.Hit || res.Err == nil {
		t.Fatalf("outage get: hit=%v err=%v", res.Hit, res.Err)
	}
}
