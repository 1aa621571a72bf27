// Package ratelimit implements sliding-window attempt limiting keyed by
// (endpoint, key type, identifier).
//
// Counters live behind a CounterStore so the same algorithm runs against local
// memory (single instance) or the shared cache (multi instance). The limiter
// is best-effort abuse mitigation, not a security boundary: on a store error
// it fails open.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// KeyType scopes a counter. Login applies ip and identifier keyings
// concurrently so spreading requests across addresses is still throttled
// per identity, and vice versa.
type KeyType string

const (
	// KeyIP scopes counters to a client address.
	KeyIP KeyType = "ip"
	// KeyIdentifier scopes counters to a submitted identity (email).
	KeyIdentifier KeyType = "identifier"
)

// Decision is the outcome of consuming an attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Config controls window and lockout behavior.
type Config struct {
	// MaxAttempts within Window before the key locks out.
	MaxAttempts int
	// Window is the sliding attempt window.
	Window time.Duration
	// Lockout is how long a key stays refused once MaxAttempts is crossed,
	// independent of whether the window itself has elapsed.
	Lockout time.Duration
}

// DefaultConfig mirrors the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		Lockout:     30 * time.Minute,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("ratelimit: MaxAttempts must be positive")
	}
	if c.Window <= 0 || c.Lockout <= 0 {
		return fmt.Errorf("ratelimit: Window and Lockout must be positive")
	}
	return nil
}

// Limiter evaluates attempt counters against Config. It holds no counter
// state of its own: each attempt is one atomic store increment, so two
// concurrent attempts on the same key are both counted.
type Limiter struct {
	cfg   Config
	store CounterStore
}

// New builds a Limiter over the given counter store.
func New(cfg Config, store CounterStore) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{cfg: cfg, store: store}, nil
}

// CheckAndConsume records an attempt for the key and reports whether it is
// allowed. Once attempts reach MaxAttempts within the window the key locks
// out and stays refused until the lockout elapses; the window counter is
// cleared at that point so attempts resume fresh afterwards.
//
// A store error fails open: the attempt is allowed and the error returned for
// logging.
func (l *Limiter) CheckAndConsume(ctx context.Context, endpoint string, kt KeyType, identifier string) (Decision, error) {
	key := counterKey(endpoint, kt, identifier)

	rem, err := l.store.LockRemaining(ctx, key)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if rem > 0 {
		return Decision{Allowed: false, RetryAfter: rem}, nil
	}

	n, err := l.store.Incr(ctx, key, l.cfg.Window)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if n < l.cfg.MaxAttempts {
		return Decision{Allowed: true}, nil
	}

	dec := Decision{Allowed: false, RetryAfter: l.cfg.Lockout}
	if err := l.store.Reset(ctx, key); err != nil {
		return dec, err
	}
	if err := l.store.Lock(ctx, key, l.cfg.Lockout); err != nil {
		return dec, err
	}
	return dec, nil
}

// Failures returns the current attempt count for a key (0 when the window has
// elapsed). Callers use it to scale pre-credential backoff.
func (l *Limiter) Failures(ctx context.Context, endpoint string, kt KeyType, identifier string) (int, error) {
	return l.store.Count(ctx, counterKey(endpoint, kt, identifier))
}

// Reset clears the counters for a key. Called after a successful action so a
// legitimate user is not locked out by their own earlier failures.
func (l *Limiter) Reset(ctx context.Context, endpoint string, kt KeyType, identifier string) error {
	return l.store.Reset(ctx, counterKey(endpoint, kt, identifier))
}

func counterKey(endpoint string, kt KeyType, identifier string) string {
	return "rl:" + endpoint + ":" + string(kt) + ":" + identifier
}
