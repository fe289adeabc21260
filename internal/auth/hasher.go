// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. Iterations are stored per account so records derived
// under an older default stay verifiable.
const (
	DefaultIterations = 10000
	SaltLen           = 16 // bytes
	KeyLen            = 64 // bytes, one SHA-512 block
)

// PasswordHasher derives and checks salted, iterated password hashes.
type PasswordHasher interface {
	// Derive computes the hash of password under salt and iterations.
	Derive(password string, salt []byte, iterations int) ([]byte, error)

	// Verify recomputes the hash and compares it in constant time.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error on
	// malformed input.
	Verify(password string, salt []byte, iterations int, expected []byte) (bool, error)
}

// PBKDF2Hasher implements PasswordHasher using PBKDF2-HMAC-SHA512.
type PBKDF2Hasher struct{}

// NewPBKDF2Hasher creates a new PBKDF2Hasher.
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{}
}

// Derive computes the PBKDF2 key for password.
func (h *PBKDF2Hasher) Derive(password string, salt []byte, iterations int) ([]byte, error) {
	if password == "" {
		return nil, oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}
	if iterations <= 0 {
		return nil, oops.Code("AUTH_INVALID_ITERATIONS").
			With("iterations", iterations).
			Errorf("iterations must be positive")
	}
	if len(salt) == 0 {
		return nil, oops.Code("AUTH_INVALID_SALT").Errorf("salt cannot be empty")
	}

	return pbkdf2.Key([]byte(password), salt, iterations, KeyLen, sha512.New), nil
}

// Verify checks password against expected.
func (h *PBKDF2Hasher) Verify(password string, salt []byte, iterations int, expected []byte) (bool, error) {
	if len(expected) == 0 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("stored hash is empty")
	}

	computed, err := h.Derive(password, salt, iterations)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// GenerateSalt returns SaltLen bytes from crypto/rand.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return salt, nil
}

// Credentials is a derived credential ready to persist.
type Credentials struct {
	PasswordHash []byte
	Salt         []byte
	Iterations   int
}

// NewCredentials derives a credential for password under a fresh salt.
func NewCredentials(hasher PasswordHasher, password string, iterations int) (Credentials, error) {
	if password == "" {
		return Credentials{}, oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return Credentials{}, err
	}

	hash, err := hasher.Derive(password, salt, iterations)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{PasswordHash: hash, Salt: salt, Iterations: iterations}, nil
}
