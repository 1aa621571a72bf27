package session

import (
	"context"
	"time"
)

// Store abstracts persistence for session state.
//
// CreateExclusive is the only multi-statement operation and must serialize
// concurrent calls for the same user (advisory lock or equivalent). The
// remaining operations are idempotent single-statement writes and take no
// lock.
type Store interface {
	// CreateExclusive runs the atomic create protocol in one transaction:
	// serialize on the user's identity, revoke the user's live rows when
	// singleSession is set, then insert row (or revive it on a token-hash
	// collision). Serialization is best-effort: if the lock cannot be taken
	// the sequence still runs, trading a brief multi-session window for
	// availability.
	CreateExclusive(ctx context.Context, row Row, singleSession bool) error

	// RevokeByTokenHash revokes the session holding hash, if it is still
	// unrevoked. Reports whether a row was revoked.
	RevokeByTokenHash(ctx context.Context, now time.Time, hash string) (bool, error)

	// RevokeAllForUser revokes every live session for the user and returns
	// the number of rows revoked.
	RevokeAllForUser(ctx context.Context, now time.Time, userID int64) (int64, error)

	// CountActiveForUser counts the user's live sessions.
	CountActiveForUser(ctx context.Context, now time.Time, userID int64) (int64, error)

	// CountActive counts live sessions across all users.
	CountActive(ctx context.Context, now time.Time) (int64, error)
}
