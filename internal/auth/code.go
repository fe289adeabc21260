// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// CodeBytes is the entropy of a verification code: 16 bytes = 32 hex chars.
const CodeBytes = 16

// GenerateCode returns a random lowercase hex code of 2*CodeBytes characters.
func GenerateCode() (string, error) {
	b := make([]byte, CodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("CODE_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// HashCode returns the SHA-256 hex digest stored in place of a code.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// MatchCode reports whether code hashes to storedHash. The comparison is
// constant-time. An empty code or hash never matches.
func MatchCode(code, storedHash string) bool {
	if code == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}

// CodeExpired reports whether a code issued at issuedAt is older than ttl at now.
// A code whose age equals ttl exactly is still valid.
func CodeExpired(issuedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(issuedAt) > ttl
}
