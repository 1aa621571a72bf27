package token

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"authcore/internal/identity"

	"github.com/google/uuid"
)

// subjectStrategy maps a verified subject string to a user, or reports that
// the subject shape is not its to handle.
type subjectStrategy interface {
	Resolve(ctx context.Context, subject string) (identity.User, bool, error)
}

// Resolver verifies a token and maps its subject to a user through an ordered
// strategy list: canonical UUID first, then the legacy numeric id. Once the
// migration completes the legacy strategy is deleted and nothing else changes.
type Resolver struct {
	mgr   *Manager
	users identity.Store
	log   *slog.Logger

	strategies []subjectStrategy
}

// NewResolver builds a Resolver over the manager and user store.
func NewResolver(mgr *Manager, users identity.Store, log *slog.Logger) (*Resolver, error) {
	if mgr == nil || users == nil {
		return nil, ErrConfig
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		mgr:   mgr,
		users: users,
		log:   log,
		strategies: []subjectStrategy{
			canonicalStrategy{users: users},
			legacyStrategy{users: users, log: log},
		},
	}, nil
}

// Resolve verifies raw as a token of the given kind and resolves its subject.
// Invalid tokens yield ErrTokenInvalid; a valid token whose subject matches
// no user yields ErrSubjectUnresolvable.
func (r *Resolver) Resolve(ctx context.Context, raw string, kind Kind) (identity.User, error) {
	subject, err := r.mgr.Verify(raw, kind)
	if err != nil {
		return identity.User{}, err
	}

	for _, s := range r.strategies {
		u, handled, err := s.Resolve(ctx, subject)
		if !handled {
			continue
		}
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.User{}, ErrSubjectUnresolvable
		}
		if err != nil {
			return identity.User{}, err
		}
		return u, nil
	}
	return identity.User{}, ErrSubjectUnresolvable
}

// canonicalStrategy resolves subjects that parse as the UUID identity.
type canonicalStrategy struct {
	users identity.Store
}

func (s canonicalStrategy) Resolve(ctx context.Context, subject string) (identity.User, bool, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return identity.User{}, false, nil
	}
	// The nil UUID is a parseable subject but never a real identity; it
	// must not match rows whose auth id is still unassigned.
	if id == uuid.Nil {
		return identity.User{}, true, identity.ErrUserNotFound
	}
	u, err := s.users.GetByAuthID(ctx, id)
	return u, true, err
}

// legacyStrategy resolves numeric subjects from tokens minted before the UUID
// migration, and backfills the canonical identity so future tokens use it.
type legacyStrategy struct {
	users identity.Store
	log   *slog.Logger
}

func (s legacyStrategy) Resolve(ctx context.Context, subject string) (identity.User, bool, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return identity.User{}, false, nil
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return identity.User{}, true, err
	}

	if u.AuthID == uuid.Nil {
		fresh := uuid.New()
		if err := s.users.BackfillAuthID(ctx, u.ID, fresh); err != nil {
			// Best-effort: the user is authenticated either way.
			s.log.Warn("token.subject.backfill.fail", "user_id", u.ID, "err", err)
		} else {
			u.AuthID = fresh
			s.log.Info("token.subject.backfill", "user_id", u.ID)
		}
	}
	return u, true, nil
}
