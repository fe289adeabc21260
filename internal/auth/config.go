// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"
)

// Defaults applied by DefaultConfig.
const (
	DefaultCodeTTL         = time.Hour
	DefaultTokenExpiration = 3 * time.Hour
	MinTokenSecretLen      = 32
)

// Config holds the settings the credential services read at construction.
type Config struct {
	// Iterations is the PBKDF2 round count for newly derived credentials.
	Iterations int
	// CodeTTL is how long an issued code stays valid.
	CodeTTL time.Duration
	// TokenSecret is the HS256 signing key.
	TokenSecret []byte
	// TokenExpiration is the lifetime of a signed token.
	TokenExpiration time.Duration
}

// DefaultConfig returns a Config with default values and no secret.
func DefaultConfig() Config {
	return Config{
		Iterations:      DefaultIterations,
		CodeTTL:         DefaultCodeTTL,
		TokenExpiration: DefaultTokenExpiration,
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if errs := c.Problems(); len(errs) > 0 {
		return oops.Code("AUTH_CONFIG_INVALID").Wrap(errors.Join(errs...))
	}
	return nil
}

// Problems lists every unusable field as a plain error.
func (c Config) Problems() []error {
	var errs []error
	if c.Iterations <= 0 {
		errs = append(errs, errors.New("iterations must be positive"))
	}
	if c.CodeTTL <= 0 {
		errs = append(errs, errors.New("code TTL must be positive"))
	}
	if len(c.TokenSecret) < MinTokenSecretLen {
		errs = append(errs, errors.New("token secret must be at least 32 bytes"))
	}
	if c.TokenExpiration <= 0 {
		errs = append(errs, errors.New("token expiration must be positive"))
	}
	return errs
}
