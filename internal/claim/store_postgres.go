package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore arbitrates claims through a single conditional upsert, so
// concurrent workers racing for the same unit are serialized by the row
// lock and exactly one statement reports an affected row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const unitColumns = `kind, subject, status, attempts, COALESCE(last_error, ''), claimed_at, sent_at`

func (s *PostgresStore) TryClaim(ctx context.Context, kind, subject string, maxAttempts int32, staleAfter time.Duration) (bool, error) {
	const q = `
INSERT INTO auth.delivery_claims (kind, subject, status, attempts, claimed_at)
VALUES ($1, $2, 'pending', 0, now())
ON CONFLICT (kind, subject) DO UPDATE
SET status = 'pending',
    claimed_at = now()
WHERE (auth.delivery_claims.status = 'failed' AND auth.delivery_claims.attempts < $3)
   OR (auth.delivery_claims.status = 'pending'
       AND auth.delivery_claims.claimed_at < now() - make_interval(secs => $4))`

	tag, err := s.pool.Exec(ctx, q, kind, subject, maxAttempts, staleAfter.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim unit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkDone(ctx context.Context, kind, subject string) error {
	const q = `
UPDATE auth.delivery_claims
SET status = 'sent', sent_at = now(), last_error = NULL
WHERE kind = $1 AND subject = $2 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, q, kind, subject)
	if err != nil {
		return fmt.Errorf("mark unit done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, kind, subject, lastError string) error {
	const q = `
UPDATE auth.delivery_claims
SET status = 'failed', attempts = attempts + 1, last_error = $3, claimed_at = NULL
WHERE kind = $1 AND subject = $2 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, q, kind, subject, lastError)
	if err != nil {
		return fmt.Errorf("release unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind, subject string) (Unit, error) {
	q := `SELECT ` + unitColumns + ` FROM auth.delivery_claims WHERE kind = $1 AND subject = $2`

	var u Unit
	err := s.pool.QueryRow(ctx, q, kind, subject).Scan(
		&u.Kind, &u.Subject, &u.Status, &u.Attempts, &u.LastError, &u.ClaimedAt, &u.SentAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, ErrUnitNotFound
	}
	if err != nil {
		return Unit{}, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) Candidates(ctx context.Context, maxAttempts int32, staleAfter time.Duration, limit int32) ([]Unit, error) {
	q := `
SELECT ` + unitColumns + `
FROM auth.delivery_claims
WHERE (status = 'failed' AND attempts < $1)
   OR (status = 'pending' AND claimed_at < now() - make_interval(secs => $2))
ORDER BY attempts, kind, subject
LIMIT $3`

	rows, err := s.pool.Query(ctx, q, maxAttempts, staleAfter.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("list retry candidates: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.Kind, &u.Subject, &u.Status, &u.Attempts, &u.LastError, &u.ClaimedAt, &u.SentAt); err != nil {
			return nil, fmt.Errorf("scan retry candidate: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
