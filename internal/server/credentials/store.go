// Package credentials hashes and verifies user passwords on top of storage.UserStorage.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/authgate/internal/crypto"
	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
)

// ErrPasswordMismatch is returned when the password does not match the stored hash
var ErrPasswordMismatch = errors.New("password mismatch")

// NewUser holds the plaintext registration data
type NewUser struct {
	Email    string
	Password string
	DialCode string
	Mobile   string
}

// Store persists users with hashed passwords.
// The plaintext password never leaves this package.
type Store struct {
	users  storage.UserStorage
	hasher crypto.PasswordHasher
	now    func() time.Time
}

// NewStore creates a credential store.
func NewStore(users storage.UserStorage, hasher crypto.PasswordHasher) *Store {
	return &Store{
		users:  users,
		hasher: hasher,
		now:    time.Now,
	}
}

// Create hashes the password and inserts a new user.
// Returns storage.ErrUserAlreadyExists if the email is taken.
func (s *Store) Create(ctx context.Context, in NewUser) (*models.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		PasswordHash: hash,
		DialCode:     in.DialCode,
		Mobile:       in.Mobile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate loads the user by email and checks the password.
// Returns storage.ErrUserNotFound or ErrPasswordMismatch.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}
	if !ok {
		return nil, ErrPasswordMismatch
	}

	return user, nil
}
