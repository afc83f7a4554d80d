package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// Используем in-memory database для тестов
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}

	return s, cleanup
}

func newTestUser(email string) *models.User {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserStorage_CreateUser(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	tests := []struct {
		user *models.User
		name string
	}{
		{
			name: "create user with email only",
			user: newTestUser("a@x.io"),
		},
		{
			name: "create user with phone",
			user: func() *models.User {
				u := newTestUser("b@x.io")
				u.DialCode = "+44"
				u.Mobile = "7700900123"
				return u
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.CreateUser(ctx, tt.user))

			retrieved, err := s.GetUserByID(ctx, tt.user.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.user.ID, retrieved.ID)
			assert.Equal(t, tt.user.Email, retrieved.Email)
			assert.Equal(t, tt.user.PasswordHash, retrieved.PasswordHash)
			assert.Equal(t, tt.user.DialCode, retrieved.DialCode)
			assert.Equal(t, tt.user.Mobile, retrieved.Mobile)
			assert.Empty(t, retrieved.RefreshToken)
			assert.False(t, retrieved.HasRefreshToken())
		})
	}
}

func TestUserStorage_CreateUser_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.CreateUser(ctx, newTestUser("dup@x.io")))

	err := s.CreateUser(ctx, newTestUser("dup@x.io"))
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestUserStorage_EmailIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.CreateUser(ctx, newTestUser("Case@x.io")))
	require.NoError(t, s.CreateUser(ctx, newTestUser("case@x.io")))

	_, err := s.GetUserByEmail(ctx, "CASE@x.io")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestUserStorage_GetUserByEmail(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := newTestUser("find@x.io")
	require.NoError(t, s.CreateUser(ctx, user))

	tests := []struct {
		wantError error
		name      string
		email     string
	}{
		{name: "existing user", email: "find@x.io"},
		{name: "unknown email", email: "missing@x.io", wantError: storage.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetUserByEmail(ctx, tt.email)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
		})
	}
}

func TestUserStorage_GetUserByID_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.GetUserByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestUserStorage_RefreshTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := newTestUser("tok@x.io")
	require.NoError(t, s.CreateUser(ctx, user))

	// Set
	require.NoError(t, s.SetRefreshToken(ctx, user.ID, "r1"))
	got, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RefreshToken)

	// Rotate with wrong expected value
	err = s.RotateRefreshToken(ctx, user.ID, "stale", "r2")
	assert.ErrorIs(t, err, storage.ErrTokenMismatch)

	// Rotate with correct value
	require.NoError(t, s.RotateRefreshToken(ctx, user.ID, "r1", "r2"))
	got, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "r2", got.RefreshToken)

	// Old value no longer rotates
	err = s.RotateRefreshToken(ctx, user.ID, "r1", "r3")
	assert.ErrorIs(t, err, storage.ErrTokenMismatch)

	// Clear
	require.NoError(t, s.ClearRefreshToken(ctx, user.ID))
	got, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RefreshToken)

	// Cleared token cannot be rotated
	err = s.RotateRefreshToken(ctx, user.ID, "r2", "r4")
	assert.ErrorIs(t, err, storage.ErrTokenMismatch)
}

func TestUserStorage_RefreshToken_UnknownUser(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	id := uuid.New().String()
	assert.ErrorIs(t, s.SetRefreshToken(ctx, id, "r1"), storage.ErrUserNotFound)
	assert.ErrorIs(t, s.ClearRefreshToken(ctx, id), storage.ErrUserNotFound)
	assert.ErrorIs(t, s.RotateRefreshToken(ctx, id, "r1", "r2"), storage.ErrTokenMismatch)
}

func TestUserStorage_RotateRefreshToken_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := newTestUser("race@x.io")
	require.NoError(t, s.CreateUser(ctx, user))
	require.NoError(t, s.SetRefreshToken(ctx, user.ID, "r0"))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.RotateRefreshToken(ctx, user.ID, "r0", uuid.New().String())
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, storage.ErrTokenMismatch)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStorage_Ping(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	assert.NoError(t, s.Ping(context.Background()))
}
