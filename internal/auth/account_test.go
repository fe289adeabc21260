// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/pkg/errutil"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"simple", "alice", false},
		{"with digits", "bob42", false},
		{"with dash and underscore", "carol-d_e", false},
		{"minimum length", "ab", false},
		{"maximum length", "a" + strings.Repeat("b", auth.MaxUsernameLength-1), false},
		{"empty", "", true},
		{"too short", "a", true},
		{"too long", "a" + strings.Repeat("b", auth.MaxUsernameLength), true},
		{"starts with digit", "1alice", true},
		{"contains space", "ali ce", true},
		{"contains at sign", "alice@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateUsername(tt.username)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_USERNAME")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewAccount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cred := auth.Credentials{PasswordHash: []byte("hash"), Salt: []byte("salt"), Iterations: 10}

	t.Run("valid", func(t *testing.T) {
		account, err := auth.NewAccount("alice", cred, now)
		require.NoError(t, err)
		assert.False(t, account.ID.IsZero())
		assert.Equal(t, "alice", account.Username)
		assert.Equal(t, now, account.CreatedAt)
		assert.False(t, account.IsVerified())
	})

	t.Run("invalid username", func(t *testing.T) {
		_, err := auth.NewAccount("", cred, now)
		require.Error(t, err)
	})

	t.Run("incomplete credential", func(t *testing.T) {
		_, err := auth.NewAccount("alice", auth.Credentials{PasswordHash: []byte("hash")}, now)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS_RECORD")
	})
}

func TestAccount_DisplayNames(t *testing.T) {
	t.Run("record fields when no profile", func(t *testing.T) {
		a := &auth.Account{GivenName: strPtr("Alice"), FamilyName: strPtr("Liddell")}
		given, family := a.DisplayNames()
		assert.Equal(t, "Alice", *given)
		assert.Equal(t, "Liddell", *family)
	})

	t.Run("profile overrides record", func(t *testing.T) {
		a := &auth.Account{
			GivenName:  strPtr("Alice"),
			FamilyName: strPtr("Liddell"),
			Profile:    &auth.Profile{GivenName: strPtr("Al")},
		}
		given, family := a.DisplayNames()
		assert.Equal(t, "Al", *given)
		assert.Equal(t, "Liddell", *family, "missing profile field falls back to record")
	})

	t.Run("all absent", func(t *testing.T) {
		given, family := (&auth.Account{Profile: &auth.Profile{}}).DisplayNames()
		assert.Nil(t, given)
		assert.Nil(t, family)
	})
}

func TestAccount_JSONHidesCredential(t *testing.T) {
	code := "digest"
	a := &auth.Account{
		Username:              "alice",
		PasswordHash:          []byte("secret-hash"),
		Salt:                  []byte("secret-salt"),
		Iterations:            10,
		PasswordResetCodeHash: &code,
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, hidden := range []string{"PasswordHash", "Salt", "Iterations", "PasswordResetCodeHash"} {
		assert.NotContains(t, fields, hidden)
	}
	assert.Equal(t, "alice", fields["Username"])
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, testConfig().Validate())
	})

	t.Run("default lacks secret", func(t *testing.T) {
		err := auth.DefaultConfig().Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_CONFIG_INVALID")
		assert.Contains(t, err.Error(), "token secret")
	})

	t.Run("reports every problem", func(t *testing.T) {
		err := auth.Config{}.Validate()
		require.Error(t, err)
		for _, msg := range []string{"iterations", "code TTL", "token secret", "token expiration"} {
			assert.Contains(t, err.Error(), msg)
		}
	})
}
