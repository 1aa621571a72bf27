package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sectoken "authcore/internal/security/token"

	"github.com/oklog/ulid/v2"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// SingleSession enforces at most one live session per user: each login
	// revokes the user's previous sessions inside the create transaction.
	SingleSession bool
}

// DefaultConfig enables the single-session policy.
func DefaultConfig() Config {
	return Config{SingleSession: true}
}

// BestEffort is the result of a side effect the caller may discard. Err is
// recorded for logging; it never propagates as a failure of the surrounding
// operation.
type BestEffort struct {
	OK  bool
	Err error
}

// Service implements the session operations over a Store.
//
// Record is deliberately best-effort: a session-row write failure means the
// client holds valid tokens with no server-side session record, which is a
// logged defect, not a failed login.
type Service struct {
	cfg   Config
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, log *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, store: store, log: log, now: time.Now}, nil
}

// Record writes the session row for an issued bearer token through the
// exclusive-create protocol. Only the token's digest is stored.
func (s *Service) Record(ctx context.Context, userID int64, rawToken string, expiresAt time.Time, meta ClientMeta) BestEffort {
	now := s.now().UTC()

	row := Row{
		ID:        ulid.Make().String(),
		UserID:    userID,
		TokenHash: sectoken.HashBearerTokenHex(rawToken),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}

	if err := s.store.CreateExclusive(ctx, row, s.cfg.SingleSession); err != nil {
		s.log.Error("session.record.fail", "user_id", userID, "err", err)
		return BestEffort{OK: false, Err: err}
	}
	return BestEffort{OK: true}
}

// RevokeByToken revokes the session holding the raw token's digest.
// Returns the number of rows revoked (0 or 1); idempotent.
func (s *Service) RevokeByToken(ctx context.Context, rawToken string) (int64, error) {
	revoked, err := s.store.RevokeByTokenHash(ctx, s.now().UTC(), sectoken.HashBearerTokenHex(rawToken))
	if err != nil {
		return 0, err
	}
	if revoked {
		return 1, nil
	}
	return 0, nil
}

// RevokeAllForUser revokes every live session for the user (admin action).
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	return s.store.RevokeAllForUser(ctx, s.now().UTC(), userID)
}

// CountActiveForUser counts the user's live sessions.
func (s *Service) CountActiveForUser(ctx context.Context, userID int64) (int64, error) {
	return s.store.CountActiveForUser(ctx, s.now().UTC(), userID)
}

// CountActive counts live sessions across all users.
func (s *Service) CountActive(ctx context.Context) (int64, error) {
	return s.store.CountActive(ctx, s.now().UTC())
}
