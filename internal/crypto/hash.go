package crypto

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// DefaultBcryptCost matches the cost the credential store has always used.
const DefaultBcryptCost = 10

// bcryptMaxPasswordLen is the number of password bytes bcrypt actually uses.
// Longer inputs are truncated on both hash and compare.
const bcryptMaxPasswordLen = 72

//go:generate moq -out hasher_mock.go . PasswordHasher

// PasswordHasher is the opaque hash/compare contract used by the credential store.
type PasswordHasher interface {
	// Hash returns a salted one-way hash of the plaintext password.
	Hash(password string) (string, error)

	// Compare reports whether password matches the stored hash.
	// A mismatch is (false, nil); an undecodable hash is an error.
	Compare(hash, password string) (bool, error)
}

// Hasher hashes new passwords with the configured algorithm and verifies
// hashes produced by any supported algorithm, so the algorithm can be
// switched without invalidating existing users.
type Hasher struct {
	algorithm  string
	argon      Argon2Params
	bcryptCost int
}

// Compile-time check that Hasher implements PasswordHasher
var _ PasswordHasher = (*Hasher)(nil)

// NewHasher создает hasher для указанного алгоритма
func NewHasher(algorithm string, bcryptCost int) (*Hasher, error) {
	switch algorithm {
	case "", AlgorithmBcrypt:
		algorithm = AlgorithmBcrypt
	case AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", algorithm)
	}

	if bcryptCost == 0 {
		bcryptCost = DefaultBcryptCost
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return &Hasher{
		algorithm:  algorithm,
		bcryptCost: bcryptCost,
		argon:      DefaultArgon2Params(),
	}, nil
}

// Algorithm returns the algorithm used for new hashes.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Hash хеширует пароль выбранным алгоритмом
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	if h.algorithm == AlgorithmArgon2id {
		return hashArgon2id(password, h.argon)
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

// Compare проверяет пароль, алгоритм определяется по префиксу хеша
func (h *Hasher) Compare(hash, password string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return compareArgon2id(hash, password)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("failed to compare password: %w", err)
	default:
		return false, ErrMalformedHash
	}
}

func bcryptInput(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxPasswordLen {
		b = b[:bcryptMaxPasswordLen]
	}
	return b
}
