package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this email already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrTokenMismatch indicates that the stored refresh token differs from the expected one
	ErrTokenMismatch = errors.New("refresh token mismatch")

	// ErrNotConnected indicates that the database connection is not established yet
	ErrNotConnected = errors.New("database not connected")
)
