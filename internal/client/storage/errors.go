package storage

import "errors"

// Common client storage errors
var (
	// ErrCookiesNotFound indicates that no cookies are stored for the host
	ErrCookiesNotFound = errors.New("cookies not found")
)
