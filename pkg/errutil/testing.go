// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.Truef(t, ok, "want an oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode fails t unless err is an oops error whose code is code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equalf(t, code, requireOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext fails t unless err carries key with value in its
// oops context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := requireOops(t, err).Context()
	if assert.Containsf(t, ctx, key, "context of %v", err) {
		assert.Equal(t, value, ctx[key])
	}
}
