package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
)

const uniqueViolation = "23505"

const userColumns = `id::text, email, password_hash, COALESCE(refresh_token, ''), dial_code, mobile, created_at, updated_at`

// CreateUser inserts a new user row.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, refresh_token, dial_code, mobile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.PasswordHash, nullIfEmpty(user.RefreshToken),
		user.DialCode, user.Mobile, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUserByEmail loads a user by exact email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetUserByID loads a user by id.
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, storage.ErrUserNotFound
	}
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// SetRefreshToken overwrites the stored refresh token.
func (s *Storage) SetRefreshToken(ctx context.Context, userID, token string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return storage.ErrUserNotFound
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET refresh_token = $2, updated_at = $3 WHERE id = $1
	`, id, nullIfEmpty(token), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// RotateRefreshToken swaps expected for next only if expected is still stored.
// An id that is not a UUID cannot match any row.
func (s *Storage) RotateRefreshToken(ctx context.Context, userID, expected, next string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return storage.ErrTokenMismatch
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET refresh_token = $3, updated_at = $4
		WHERE id = $1 AND refresh_token = $2
	`, id, expected, next, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrTokenMismatch
	}

	return nil
}

// ClearRefreshToken removes the stored refresh token.
func (s *Storage) ClearRefreshToken(ctx context.Context, userID string) error {
	return s.SetRefreshToken(ctx, userID, "")
}

func (s *Storage) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.DialCode,
		&user.Mobile,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
