// Package session enforces the single-active-session policy.
//
// Session rows are an append-only audit trail: they are created at login,
// marked revoked at logout or at the next login for the same user, and never
// physically deleted. The row stores a one-way hash of the bearer token,
// never the token itself.
package session

import (
	"net"
	"time"
)

// ClientMeta is the optional client context recorded on a session row.
type ClientMeta struct {
	IP        net.IP
	UserAgent string
}

// Row mirrors one auth.user_sessions record.
//
// A row is active iff RevokedAt is nil and ExpiresAt is in the future. Under
// the single-session policy at most one row per user is active at any
// instant.
type Row struct {
	ID        string
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	IP        net.IP
	UserAgent string
}

// Active reports whether the row is live at the given instant.
func (r Row) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}
