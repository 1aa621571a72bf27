// Package authcache holds the two read-through cache facades in front of the
// user store: the authorization-context cache keyed by canonical identity,
// and the login-user cache keyed by a digest of the submitted email.
//
// Both caches are accelerators, never sources of truth. Every redis failure
// degrades to a miss, every write and invalidation is best-effort, and no
// secret material is ever serialized into an entry.
package authcache

import (
	"time"
)

// Result reports the outcome of a cache operation. Callers are free to
// discard it; the error is informational and never a failure of the
// surrounding operation.
type Result struct {
	Hit     bool
	Err     error
	Elapsed time.Duration
}

func miss(start time.Time, err error) Result {
	return Result{Hit: false, Err: err, Elapsed: time.Since(start)}
}

func hit(start time.Time) Result {
	return Result{Hit: true, Elapsed: time.Since(start)}
}
