// Package backoff computes the pre-credential delay applied to login
// attempts. The delay scales with recent failures to slow credential
// stuffing, and is clamped so it can never be turned into a denial-of-service
// lever against the server itself.
package backoff

import (
	"context"
	"time"
)

// Config bounds the delay curve.
type Config struct {
	// Base is the delay at the first counted failure.
	Base time.Duration
	// Max caps the delay regardless of failure count.
	Max time.Duration
	// FreeAttempts are ignored so legitimate low-rate clients see no delay.
	FreeAttempts int
}

// DefaultConfig keeps delays well under the request timeout budget.
func DefaultConfig() Config {
	return Config{
		Base:         100 * time.Millisecond,
		Max:          2 * time.Second,
		FreeAttempts: 1,
	}
}

// DelayFor maps a consecutive-failure count to a delay. Monotonically
// non-decreasing, zero through FreeAttempts, doubling afterwards, clamped to
// Max.
func (c Config) DelayFor(failures int) time.Duration {
	if failures <= c.FreeAttempts {
		return 0
	}
	if c.Base <= 0 || c.Max <= 0 {
		return 0
	}

	d := c.Base
	for i := c.FreeAttempts + 1; i < failures; i++ {
		d *= 2
		if d >= c.Max {
			return c.Max
		}
	}
	if d > c.Max {
		return c.Max
	}
	return d
}

// Sleep blocks for DelayFor(failures), honoring context cancellation.
// It runs before credential comparison and before existence of the identity
// is revealed, so timing cannot separate the two failure kinds.
func (c Config) Sleep(ctx context.Context, failures int) error {
	d := c.DelayFor(failures)
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
