package identity

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts user lookup for the auth core.
//
// Implementations must treat the projection as read-only except for
// BackfillAuthID, which assigns the canonical UUID to a legacy record exactly
// once.
type Store interface {
	// GetByEmail loads a user by normalized email.
	GetByEmail(ctx context.Context, email string) (User, error)

	// GetByID loads a user by the legacy numeric identifier.
	GetByID(ctx context.Context, id int64) (User, error)

	// GetByAuthID loads a user by the canonical UUID identity.
	GetByAuthID(ctx context.Context, authID uuid.UUID) (User, error)

	// BackfillAuthID assigns authID to the user iff none is set yet.
	// Idempotent: a user that already carries an auth ID is left untouched.
	BackfillAuthID(ctx context.Context, id int64, authID uuid.UUID) error
}
