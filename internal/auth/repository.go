package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository is the Postgres-backed UserStore and RevocationStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, hashed_password, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, email, hashed_password, created_at
	`, email, passwordHash, time.Now().UTC()).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrAlreadyExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, email, hashed_password, created_at
		FROM users
		WHERE email = $1
	`, email), "query user by email")
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, email, hashed_password, created_at
		FROM users
		WHERE id = $1
	`, id), "query user by id")
}

func (r *Repository) scanUser(row *sql.Row, op string) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (r *Repository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if strings.TrimSpace(jti) == "" {
		return false, nil
	}

	var revoked bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM revoked_tokens
			WHERE jti = $1 AND expires_at > $2
		)
	`, jti, time.Now().UTC()).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("query revoked token: %w", err)
	}

	return revoked, nil
}

// Revoke records jti once. Two requests racing on the same jti both succeed:
// the loser either sees the row or hits the unique key and stops there.
func (r *Repository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)
	`, jti).Scan(&exists); err != nil {
		return fmt.Errorf("check revoked token: %w", err)
	}
	if exists {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert revoked token: %w", err)
	}

	return nil
}

// PruneExpired deletes up to batchSize records that expired before the
// cutoff. Membership checks already ignore them; this only reclaims space.
func (r *Repository) PruneExpired(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM revoked_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM revoked_tokens t
		USING stale
		WHERE t.id = stale.id
	`, before.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired revoked tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired revoked tokens rows affected: %w", err)
	}

	return affected, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
