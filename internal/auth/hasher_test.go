// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/pkg/errutil"
)

func TestPBKDF2Hasher_Derive(t *testing.T) {
	hasher := auth.NewPBKDF2Hasher()
	salt := []byte("0123456789abcdef")

	t.Run("produces key of fixed length", func(t *testing.T) {
		hash, err := hasher.Derive("password123", salt, 100)
		require.NoError(t, err)
		assert.Len(t, hash, auth.KeyLen)
	})

	t.Run("is deterministic for same inputs", func(t *testing.T) {
		hash1, err := hasher.Derive("password123", salt, 100)
		require.NoError(t, err)
		hash2, err := hasher.Derive("password123", salt, 100)
		require.NoError(t, err)
		assert.Equal(t, hash1, hash2)
	})

	t.Run("salt changes the hash", func(t *testing.T) {
		hash1, err := hasher.Derive("password123", salt, 100)
		require.NoError(t, err)
		hash2, err := hasher.Derive("password123", []byte("fedcba9876543210"), 100)
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("iterations change the hash", func(t *testing.T) {
		hash1, err := hasher.Derive("password123", salt, 100)
		require.NoError(t, err)
		hash2, err := hasher.Derive("password123", salt, 101)
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Derive("", salt, 100)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("rejects non-positive iterations", func(t *testing.T) {
		for _, iters := range []int{0, -1} {
			_, err := hasher.Derive("password123", salt, iters)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_ITERATIONS")
		}
	})

	t.Run("rejects empty salt", func(t *testing.T) {
		_, err := hasher.Derive("password123", nil, 100)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_SALT")
	})
}

func TestPBKDF2Hasher_Verify(t *testing.T) {
	hasher := auth.NewPBKDF2Hasher()
	salt := []byte("0123456789abcdef")

	passwords := []string{"a", "correct horse battery staple", "NewPass123!", "üñíçødé", "    "}
	for _, p := range passwords {
		t.Run("round trip "+p, func(t *testing.T) {
			hash, err := hasher.Derive(p, salt, 50)
			require.NoError(t, err)

			ok, err := hasher.Verify(p, salt, 50, hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = hasher.Verify(p+"x", salt, 50, hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	t.Run("wrong iterations fail", func(t *testing.T) {
		hash, err := hasher.Derive("password123", salt, 50)
		require.NoError(t, err)

		ok, err := hasher.Verify("password123", salt, 51, hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty stored hash is an error", func(t *testing.T) {
		_, err := hasher.Verify("password123", salt, 50, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
	})

	t.Run("empty password is an error", func(t *testing.T) {
		_, err := hasher.Verify("", salt, 50, make([]byte, auth.KeyLen))
		require.ErrorIs(t, err, auth.ErrEmptyPassword)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("malformed record is not an empty password", func(t *testing.T) {
		_, err := hasher.Verify("password123", nil, 50, make([]byte, auth.KeyLen))
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrEmptyPassword)
	})
}

func TestGenerateSalt(t *testing.T) {
	salt1, err := auth.GenerateSalt()
	require.NoError(t, err)
	salt2, err := auth.GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, salt1, auth.SaltLen)
	assert.NotEqual(t, salt1, salt2)
}

func TestNewCredentials(t *testing.T) {
	hasher := auth.NewPBKDF2Hasher()

	t.Run("derives verifiable credential", func(t *testing.T) {
		cred, err := auth.NewCredentials(hasher, "password123", 20)
		require.NoError(t, err)
		assert.Equal(t, 20, cred.Iterations)
		assert.Len(t, cred.Salt, auth.SaltLen)

		ok, err := hasher.Verify("password123", cred.Salt, cred.Iterations, cred.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("fresh salt per call", func(t *testing.T) {
		cred1, err := auth.NewCredentials(hasher, "password123", 20)
		require.NoError(t, err)
		cred2, err := auth.NewCredentials(hasher, "password123", 20)
		require.NoError(t, err)
		assert.NotEqual(t, cred1.Salt, cred2.Salt)
		assert.NotEqual(t, cred1.PasswordHash, cred2.PasswordHash)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := auth.NewCredentials(hasher, "", 20)
		require.ErrorIs(t, err, auth.ErrEmptyPassword)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestErrEmptyPassword_OnlyMatchesItself(t *testing.T) {
	others := []error{
		auth.ErrNotFound,
		auth.ErrUserNotVerified,
		auth.ErrInvalidCode,
		auth.ErrNoPendingEmail,
		auth.ErrInvalidCredentials,
		auth.ErrInvalidToken,
		auth.ErrExpiredToken,
		auth.ErrConflict,
		errors.New("connection reset"),
	}
	for _, other := range others {
		wrapped := oops.Code("SOME_FAILURE").With("operation", "lookup").Wrap(other)
		assert.NotErrorIs(t, wrapped, auth.ErrEmptyPassword, "%v", other)
	}
	assert.NotErrorIs(t, oops.Code("PLAIN").Errorf("no cause"), auth.ErrEmptyPassword)
	assert.ErrorIs(t, oops.Code("AUTH_EMPTY_PASSWORD").Wrap(auth.ErrEmptyPassword), auth.ErrEmptyPassword)
}
