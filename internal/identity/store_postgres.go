package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against auth.app_users.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed user store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil db pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const userColumns = `
	user_id, auth_user_id, user_email, user_password_hash,
	user_full_name, user_role, user_status, user_is_activated, deleted_at
`

// GetByEmail loads a user by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.queryOne(ctx, `
		SELECT `+userColumns+`
		FROM auth.app_users
		WHERE lower(user_email) = $1
	`, NormalizeEmail(email))
}

// GetByID loads a user by the legacy numeric identifier.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (User, error) {
	return s.queryOne(ctx, `
		SELECT `+userColumns+`
		FROM auth.app_users
		WHERE user_id = $1
	`, id)
}

// GetByAuthID loads a user by the canonical UUID identity.
func (s *PostgresStore) GetByAuthID(ctx context.Context, authID uuid.UUID) (User, error) {
	return s.queryOne(ctx, `
		SELECT `+userColumns+`
		FROM auth.app_users
		WHERE auth_user_id = $1
	`, authID)
}

// BackfillAuthID assigns the canonical UUID to a legacy record, once.
func (s *PostgresStore) BackfillAuthID(ctx context.Context, id int64, authID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE auth.app_users
		SET auth_user_id = $2
		WHERE user_id = $1
		  AND auth_user_id IS NULL
	`, id, authID)
	return err
}

func (s *PostgresStore) queryOne(ctx context.Context, sql string, arg any) (User, error) {
	var (
		u      User
		authID *uuid.UUID
	)

	err := s.pool.QueryRow(ctx, sql, arg).Scan(
		&u.ID,
		&authID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Role,
		&u.Status,
		&u.Activated,
		&u.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	if authID != nil {
		u.AuthID = *authID
	}
	return u, nil
}
