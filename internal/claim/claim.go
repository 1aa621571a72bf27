// Package claim coordinates at-most-one-worker ownership of retryable
// delivery units. A unit is identified by "<kind>:<subject>" (for example
// "welcome:42"); a claim either wins it atomically or loses to another
// worker, and a won unit must end in MarkDone or Release.
package claim

import (
	"time"
)

// Unit statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Unit is one delivery unit and its retry bookkeeping.
type Unit struct {
	Kind      string
	Subject   string
	Status    string
	Attempts  int32
	LastError string
	ClaimedAt *time.Time
	SentAt    *time.Time
}

// Key returns the unit identity used for claim arbitration.
func (u Unit) Key() string { return u.Kind + ":" + u.Subject }

// Config bounds the coordinator.
type Config struct {
	// MaxAttempts caps how many times a failed unit may be re-claimed.
	MaxAttempts int32
	// StaleAfter is the age past which a pending claim is presumed
	// abandoned by a crashed worker and may be stolen.
	StaleAfter time.Duration
}

// DefaultConfig mirrors a small retry budget with crash recovery on the
// order of the worker interval.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, StaleAfter: 10 * time.Minute}
}
