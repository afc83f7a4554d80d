package session

import (
	"errors"
	"fmt"
)

// Error taxonomy of the session protocol. Handlers map these to HTTP statuses.
var (
	// ErrValidation indicates a missing required field
	ErrValidation = errors.New("email, password and captcha are required")

	// ErrCaptchaFailed indicates that the captcha provider rejected the token
	ErrCaptchaFailed = errors.New("captcha verification failed")

	// ErrConflict indicates that the email is already registered
	ErrConflict = errors.New("user already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated covers every refresh token failure
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNoRefreshToken indicates that no refresh token was presented
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token", ErrUnauthenticated)

	// ErrInvalidRefreshToken indicates a bad signature or an expired token
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", ErrUnauthenticated)

	// ErrRefreshTokenNotRecognized indicates that the token is not the one stored for the user
	ErrRefreshTokenNotRecognized = fmt.Errorf("%w: refresh token not recognized", ErrUnauthenticated)
)

// CaptchaError carries the provider diagnostic payload.
type CaptchaError struct {
	Details map[string]any
}

func (e *CaptchaError) Error() string {
	return ErrCaptchaFailed.Error()
}

// Is makes errors.Is(err, ErrCaptchaFailed) hold for *CaptchaError.
func (e *CaptchaError) Is(target error) bool {
	return target == ErrCaptchaFailed
}
