package storage

import (
	"context"
	"sync/atomic"

	"github.com/iudanet/authgate/internal/models"
)

// Holder is a UserStorage whose backend is attached once the database
// connection has been established. Until then every call fails with
// ErrNotConnected and Ready reports false.
type Holder struct {
	backend atomic.Pointer[UserStorage]
}

// Compile-time check that Holder implements UserStorage
var _ UserStorage = (*Holder)(nil)

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Attach sets the connected backend.
func (h *Holder) Attach(s UserStorage) {
	h.backend.Store(&s)
}

// Ready reports whether a backend is attached.
func (h *Holder) Ready() bool {
	return h.backend.Load() != nil
}

func (h *Holder) get() (UserStorage, error) {
	p := h.backend.Load()
	if p == nil {
		return nil, ErrNotConnected
	}
	return *p, nil
}

// CreateUser delegates to the attached backend.
func (h *Holder) CreateUser(ctx context.Context, user *models.User) error {
	s, err := h.get()
	if err != nil {
		return err
	}
	return s.CreateUser(ctx, user)
}

// GetUserByEmail delegates to the attached backend.
func (h *Holder) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s, err := h.get()
	if err != nil {
		return nil, err
	}
	return s.GetUserByEmail(ctx, email)
}

// GetUserByID delegates to the attached backend.
func (h *Holder) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	s, err := h.get()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, userID)
}

// SetRefreshToken delegates to the attached backend.
func (h *Holder) SetRefreshToken(ctx context.Context, userID, token string) error {
	s, err := h.get()
	if err != nil {
		return err
	}
	return s.SetRefreshToken(ctx, userID, token)
}

// RotateRefreshToken delegates to the attached backend.
func (h *Holder) RotateRefreshToken(ctx context.Context, userID, expected, next string) error {
	s, err := h.get()
	if err != nil {
		return err
	}
	return s.RotateRefreshToken(ctx, userID, expected, next)
}

// ClearRefreshToken delegates to the attached backend.
func (h *Holder) ClearRefreshToken(ctx context.Context, userID string) error {
	s, err := h.get()
	if err != nil {
		return err
	}
	return s.ClearRefreshToken(ctx, userID)
}

// Ping delegates to the attached backend.
func (h *Holder) Ping(ctx context.Context) error {
	s, err := h.get()
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Close closes the attached backend, if any.
func (h *Holder) Close() error {
	p := h.backend.Load()
	if p == nil {
		return nil
	}
	return (*p).Close()
}
