package claim

import (
	"context"
	"errors"
	"time"
)

// ErrNotClaimed is returned by MarkDone and Release when the unit is not
// currently pending, which indicates a protocol violation by the caller.
var ErrNotClaimed = errors.New("claim: unit is not pending")

// Store persists delivery units and arbitrates claims. TryClaim must be a
// single atomic operation: under concurrent callers for the same unit,
// exactly one receives claimed=true.
type Store interface {
	// TryClaim attempts to take ownership of the unit. It wins when no
	// row exists, when the unit previously failed with fewer than
	// maxAttempts attempts, or when a pending claim is older than
	// staleAfter. On a win the unit is pending with ClaimedAt = now.
	TryClaim(ctx context.Context, kind, subject string, maxAttempts int32, staleAfter time.Duration) (bool, error)

	// MarkDone finishes a won claim: the unit becomes sent permanently.
	MarkDone(ctx context.Context, kind, subject string) error

	// Release abandons a won claim after a delivery failure: the unit
	// becomes failed, its attempt counter increments, and lastError is
	// recorded so a later cycle may re-claim it.
	Release(ctx context.Context, kind, subject, lastError string) error

	// Get reads the unit for inspection.
	Get(ctx context.Context, kind, subject string) (Unit, error)

	// Candidates lists units eligible for a retry pass: failed under
	// maxAttempts, or pending staler than staleAfter.
	Candidates(ctx context.Context, maxAttempts int32, staleAfter time.Duration, limit int32) ([]Unit, error)
}

// ErrUnitNotFound is returned by Get for unknown units.
var ErrUnitNotFound = errors.New("claim: unit not found")
