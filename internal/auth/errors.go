// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import "errors"

// Error kinds returned by the credential services. Callers branch on these
// with errors.Is; the oops wrappers around them carry operation context.
// Any other error from a service is a store or programming failure and
// should be reported to clients as a generic server error.
var (
	// ErrNotFound is returned when no account matches a username or email.
	ErrNotFound = errors.New("not found")

	// ErrUserNotVerified is returned when a reset code is requested for an
	// account that has no verified email to deliver it to.
	ErrUserNotVerified = errors.New("user not verified")

	// ErrInvalidCode covers a missing, mismatched or expired code.
	ErrInvalidCode = errors.New("invalid code")

	// ErrNoPendingEmail is returned when a verification code is consumed for
	// an account with no email change in progress.
	ErrNoPendingEmail = errors.New("no pending email")

	// ErrInvalidCredentials is returned for a bad password or a malformed
	// Basic-Auth header.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for a token that is malformed, signed with
	// the wrong key or algorithm, or missing required claims.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned for a well-formed token past its exp claim.
	ErrExpiredToken = errors.New("expired token")

	// ErrEmptyPassword is returned when a password to set or derive is empty.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrConflict is returned when a username or email is already taken.
	ErrConflict = errors.New("already exists")
)
