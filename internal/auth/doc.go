// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package auth provides the credential and verification-code lifecycle for Ideaboard.
//
// # Domain Types
//
// Accounts should be created with NewAccount, which validates the username
// and requires a derived credential (see NewCredentials). Repository
// implementations receive pre-validated accounts.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - existence checks, password authentication, password updates, signup, unverified cleanup
//   - VerificationService - password reset and email verification codes
//   - TokenService - signing, decoding and verifying session tokens
//
// Services are created with New*Service constructors that validate their
// dependencies and take a Config by value. Nothing reads ambient globals.
//
// # Errors
//
// Expected outcomes are reported as the sentinel errors in errors.go and
// must be matched with errors.Is. A wrong password is not an error:
// Authenticate returns a negative AuthResult instead.
//
// # Codes
//
// Codes are 32 lowercase hex characters. Only their SHA-256 digest is
// stored. A code is consumed by a conditional repository update keyed on
// that digest, so concurrent consumers of one code see exactly one success.
package auth
