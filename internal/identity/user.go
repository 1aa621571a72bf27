// Package identity is the boundary to the user-management collaborator.
//
// The auth core reads user projections and performs exactly one write here:
// backfilling the canonical auth UUID onto legacy records during token
// resolution. Everything else about users is owned elsewhere.
package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status values carried on the user projection. The auth core only cares
// whether a user may log in; the full lifecycle lives with the owner.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusPending   = "pending"
)

// User is the minimal projection the auth core needs.
//
// AuthID is the canonical subject identity placed in token subjects. ID is the
// legacy numeric identifier and must keep resolving for tokens minted before
// the UUID migration. AuthID is immutable once assigned.
type User struct {
	ID           int64
	AuthID       uuid.UUID
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	Status       string
	Activated    bool
	DeletedAt    *time.Time
}

// IsActive reports whether the user may authenticate.
func (u User) IsActive() bool {
	return u.Activated && u.DeletedAt == nil && u.Status == StatusActive
}

// NormalizeEmail lowercases and trims an email for lookups and cache keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
