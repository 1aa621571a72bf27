package authcache

import (
	"context"
	"encoding/json"
	"time"

	"authcore/internal/identity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const authCtxKeyPrefix = "auth_user_ctx:"

// AuthContextEntry is the cached projection used by authenticate. It carries
// identifiers and status flags only; the password hash is never cached.
type AuthContextEntry struct {
	UserID    int64      `json:"user_id"`
	AuthID    uuid.UUID  `json:"auth_user_id"`
	Email     string     `json:"user_email"`
	Role      string     `json:"user_role"`
	Status    string     `json:"user_status"`
	Activated bool       `json:"user_is_activated"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// FromUser projects a user into a cacheable entry.
func (e *AuthContextEntry) FromUser(u identity.User) {
	e.UserID = u.ID
	e.AuthID = u.AuthID
	e.Email = u.Email
	e.Role = u.Role
	e.Status = u.Status
	e.Activated = u.Activated
	e.DeletedAt = u.DeletedAt
}

// User rebuilds the (hash-free) user projection.
func (e AuthContextEntry) User() identity.User {
	return identity.User{
		ID:        e.UserID,
		AuthID:    e.AuthID,
		Email:     e.Email,
		Role:      e.Role,
		Status:    e.Status,
		Activated: e.Activated,
		DeletedAt: e.DeletedAt,
	}
}

// AuthContextCache is the read-through cache for authorization contexts.
// A nil client is a permanent miss.
type AuthContextCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAuthContextCache builds the facade. ttl <= 0 falls back to 60s.
func NewAuthContextCache(rdb *redis.Client, ttl time.Duration) *AuthContextCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &AuthContextCache{rdb: rdb, ttl: ttl}
}

// Get looks up the entry for authID. A redis failure or corrupt payload is a
// miss, never an error to the caller.
func (c *AuthContextCache) Get(ctx context.Context, authID uuid.UUID) (AuthContextEntry, Result) {
	start := time.Now()
	if c.rdb == nil {
		return AuthContextEntry{}, miss(start, nil)
	}

	raw, err := c.rdb.Get(ctx, authCtxKeyPrefix+authID.String()).Result()
	if err != nil {
		if err == redis.Nil {
			err = nil
		}
		return AuthContextEntry{}, miss(start, err)
	}

	var e AuthContextEntry
	if jerr := json.Unmarshal([]byte(raw), &e); jerr != nil {
		return AuthContextEntry{}, miss(start, jerr)
	}
	return e, hit(start)
}

// Set writes the entry, best-effort.
func (c *AuthContextCache) Set(ctx context.Context, e AuthContextEntry) Result {
	start := time.Now()
	if c.rdb == nil || e.AuthID == uuid.Nil {
		return miss(start, nil)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return miss(start, err)
	}
	if err := c.rdb.Set(ctx, authCtxKeyPrefix+e.AuthID.String(), raw, c.ttl).Err(); err != nil {
		return miss(start, err)
	}
	return hit(start)
}

// Invalidate removes the entry for authID, best-effort. Mutations to any
// cached field (status, activation, soft delete, role) must call this.
func (c *AuthContextCache) Invalidate(ctx context.Context, authID uuid.UUID) Result {
	start := time.Now()
	if c.rdb == nil {
		return miss(start, nil)
	}
	if err := c.rdb.Del(ctx, authCtxKeyPrefix+authID.String()).Err(); err != nil {
		return miss(start, err)
	}
	return hit(start)
}
