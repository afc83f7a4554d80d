// Package session implements register, login, refresh and logout
// on top of the credential store, the token service and the captcha verifier.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/captcha"
	"github.com/iudanet/authgate/internal/server/credentials"
	"github.com/iudanet/authgate/internal/server/jwt"
	"github.com/iudanet/authgate/internal/server/storage"
)

// Credentials creates and authenticates users
type Credentials interface {
	Create(ctx context.Context, in credentials.NewUser) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// Tokens issues and verifies signed tokens
type Tokens interface {
	IssueAccessToken(userID string) (string, error)
	IssueRefreshToken(userID string) (string, error)
	VerifyRefreshToken(token string) (*jwt.Claims, error)
}

// RegisterInput is the registration request
type RegisterInput struct {
	Email        string
	Password     string
	DialCode     string
	Mobile       string
	CaptchaToken string
	RemoteIP     string
}

// LoginInput is the login request
type LoginInput struct {
	Email        string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// User is the public projection of a user
type User struct {
	ID    string
	Email string
}

// Result is a freshly issued session.
// RefreshToken goes to the cookie, never to the response body.
type Result struct {
	User         User
	AccessToken  string
	RefreshToken string
}

// Service implements the session protocol
type Service struct {
	credentials Credentials
	users       storage.UserStorage
	tokens      Tokens
	captcha     captcha.Verifier
	logger      *slog.Logger
}

// NewService creates a session service
func NewService(creds Credentials, users storage.UserStorage, tokens Tokens, verifier captcha.Verifier, logger *slog.Logger) *Service {
	return &Service{
		credentials: creds,
		users:       users,
		tokens:      tokens,
		captcha:     verifier,
		logger:      logger,
	}
}

// Register creates a user and opens a session for it
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	if err := s.gate(ctx, in.Email, in.Password, in.CaptchaToken, in.RemoteIP); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	user, err := s.credentials.Create(ctx, credentials.NewUser{
		Email:    in.Email,
		Password: in.Password,
		DialCode: in.DialCode,
		Mobile:   in.Mobile,
	})
	if err != nil {
		// Гонка двух регистраций: уникальный индекс срабатывает после проверки выше
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))

	return s.open(ctx, user)
}

// Login authenticates a user and opens a new session, replacing any previous refresh token
func (s *Service) Login(ctx context.Context, in LoginInput) (*Result, error) {
	if err := s.gate(ctx, in.Email, in.Password, in.CaptchaToken, in.RemoteIP); err != nil {
		return nil, err
	}

	user, err := s.credentials.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) || errors.Is(err, credentials.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	return s.open(ctx, user)
}

// Refresh exchanges the stored refresh token for a new token pair.
// The presented token stops being valid once this returns successfully.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrRefreshTokenNotRecognized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasRefreshToken() || user.RefreshToken != refreshToken {
		return nil, ErrRefreshTokenNotRecognized
	}

	accessToken, nextRefresh, err := s.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	// Условная запись: из двух параллельных refresh выигрывает только один
	if err := s.users.RotateRefreshToken(ctx, user.ID, refreshToken, nextRefresh); err != nil {
		if errors.Is(err, storage.ErrTokenMismatch) {
			return nil, ErrRefreshTokenNotRecognized
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return &Result{
		User:         User{ID: user.ID, Email: user.Email},
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
	}, nil
}

// Logout clears the stored refresh token of the user the token belongs to.
// Failures are logged and swallowed: logout always succeeds for the caller.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return
	}

	err = s.users.ClearRefreshToken(ctx, claims.UserID)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		s.logger.WarnContext(ctx, "failed to clear refresh token on logout",
			slog.String("user_id", claims.UserID),
			slog.Any("error", err))
	}
}

// gate runs the checks shared by Register and Login: required fields, then captcha
func (s *Service) gate(ctx context.Context, email, password, captchaToken, remoteIP string) error {
	if email == "" || password == "" || captchaToken == "" {
		return ErrValidation
	}

	res := s.captcha.Verify(ctx, captchaToken, remoteIP)
	if !res.Success {
		return &CaptchaError{Details: res.Details}
	}

	return nil
}

// open issues a token pair and stores the refresh token unconditionally
func (s *Service) open(ctx context.Context, user *models.User) (*Result, error) {
	accessToken, refreshToken, err := s.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &Result{
		User:         User{ID: user.ID, Email: user.Email},
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *Service) issuePair(userID string) (string, string, error) {
	accessToken, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}
