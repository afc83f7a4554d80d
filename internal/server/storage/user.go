package storage

import (
	"context"

	"github.com/iudanet/authgate/internal/models"
)

//go:generate moq -out user_mock.go . UserStorage

// UserStorage defines interface for user data persistence
type UserStorage interface {
	// CreateUser creates a new user in the storage
	// Returns ErrUserAlreadyExists if email already exists
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves user by email (exact, case-sensitive match)
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves user by ID
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// SetRefreshToken overwrites the stored refresh token unconditionally
	// Returns ErrUserNotFound if user doesn't exist
	SetRefreshToken(ctx context.Context, userID, token string) error

	// RotateRefreshToken replaces the stored refresh token only if it still equals expected
	// Returns ErrTokenMismatch if another writer rotated it first
	RotateRefreshToken(ctx context.Context, userID, expected, next string) error

	// ClearRefreshToken removes the stored refresh token
	// Returns ErrUserNotFound if user doesn't exist
	ClearRefreshToken(ctx context.Context, userID string) error

	// Ping checks that the storage is reachable
	Ping(ctx context.Context) error

	// Close releases the underlying connection
	Close() error
}
