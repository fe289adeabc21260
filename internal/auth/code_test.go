// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaboard/ideaboard/internal/auth"
)

var hexCode = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestGenerateCode(t *testing.T) {
	t.Run("is 32 lowercase hex chars", func(t *testing.T) {
		code, err := auth.GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, hexCode, code)
	})

	t.Run("does not repeat", func(t *testing.T) {
		seen := make(map[string]struct{}, 1000)
		for range 1000 {
			code, err := auth.GenerateCode()
			require.NoError(t, err)
			_, dup := seen[code]
			require.False(t, dup, "duplicate code %s", code)
			seen[code] = struct{}{}
		}
	})
}

func TestMatchCode(t *testing.T) {
	code, err := auth.GenerateCode()
	require.NoError(t, err)
	stored := auth.HashCode(code)

	assert.True(t, auth.MatchCode(code, stored))
	assert.False(t, auth.MatchCode("wrong", stored))
	assert.False(t, auth.MatchCode("", stored))
	assert.False(t, auth.MatchCode(code, ""))
	assert.NotEqual(t, code, stored, "digest must differ from plaintext")
}

func TestCodeExpired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 30 * time.Minute

	tests := []struct {
		name    string
		now     time.Time
		expired bool
	}{
		{"just issued", issued, false},
		{"one second before ttl", issued.Add(ttl - time.Second), false},
		{"exactly at ttl", issued.Add(ttl), false},
		{"one nanosecond past ttl", issued.Add(ttl + time.Nanosecond), true},
		{"long past", issued.Add(24 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, auth.CodeExpired(issued, tt.now, ttl))
		})
	}
}
