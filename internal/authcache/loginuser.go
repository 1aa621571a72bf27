package authcache

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"authcore/internal/identity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const loginUserKeyPrefix = "login_user:"

// LoginUserEntry is the cached login-path projection. The email is part of
// the key derivation, not the payload, and the password hash is excluded so
// a cache hit still requires a database read before credential verification.
type LoginUserEntry struct {
	UserID    int64      `json:"user_id"`
	AuthID    uuid.UUID  `json:"auth_user_id"`
	Role      string     `json:"user_role"`
	Status    string     `json:"user_status"`
	Activated bool       `json:"user_is_activated"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// FromUser projects a user into a cacheable login entry.
func (e *LoginUserEntry) FromUser(u identity.User) {
	e.UserID = u.ID
	e.AuthID = u.AuthID
	e.Role = u.Role
	e.Status = u.Status
	e.Activated = u.Activated
	e.DeletedAt = u.DeletedAt
}

// LoginUserCache is the read-through cache for the login identity lookup,
// keyed by a keyed hash of the normalized email so raw addresses never
// appear in redis. A nil client is a permanent miss.
type LoginUserCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	secret []byte
}

// NewLoginUserCache builds the facade. ttl <= 0 falls back to 120s. When
// secret is empty the key derivation degrades to plain SHA-256.
func NewLoginUserCache(rdb *redis.Client, ttl time.Duration, secret []byte) *LoginUserCache {
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &LoginUserCache{rdb: rdb, ttl: ttl, secret: secret}
}

// Key derives the cache key for an email address.
func (c *LoginUserCache) Key(email string) string {
	norm := identity.NormalizeEmail(email)
	var sum []byte
	if len(c.secret) > 0 {
		mac := hmac.New(sha256.New, c.secret)
		mac.Write([]byte(norm))
		sum = mac.Sum(nil)
	} else {
		s := sha256.Sum256([]byte(norm))
		sum = s[:]
	}
	return loginUserKeyPrefix + hex.EncodeToString(sum)
}

// Get looks up the entry for email. Failures and corrupt payloads are misses.
func (c *LoginUserCache) Get(ctx context.Context, email string) (LoginUserEntry, Result) {
	start := time.Now()
	if c.rdb == nil {
		return LoginUserEntry{}, miss(start, nil)
	}

	raw, err := c.rdb.Get(ctx, c.Key(email)).Result()
	if err != nil {
		if err == redis.Nil {
			err = nil
		}
		return LoginUserEntry{}, miss(start, err)
	}

	var e LoginUserEntry
	if jerr := json.Unmarshal([]byte(raw), &e); jerr != nil {
		return LoginUserEntry{}, miss(start, jerr)
	}
	return e, hit(start)
}

// Set writes the entry for email, best-effort.
func (c *LoginUserCache) Set(ctx context.Context, email string, e LoginUserEntry) Result {
	start := time.Now()
	if c.rdb == nil {
		return miss(start, nil)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return miss(start, err)
	}
	if err := c.rdb.Set(ctx, c.Key(email), raw, c.ttl).Err(); err != nil {
		return miss(start, err)
	}
	return hit(start)
}

// Invalidate removes the entry for email, best-effort.
func (c *LoginUserCache) Invalidate(ctx context.Context, email string) Result {
	start := time.Now()
	if c.rdb == nil {
		return miss(start, nil)
	}
	if err := c.rdb.Del(ctx, c.Key(email)).Err(); err != nil {
		return miss(start, err)
	}
	return hit(start)
}
