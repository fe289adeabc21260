// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Service provides authentication operations.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates a new Service.
func NewAuthService(accounts AccountRepository, hasher PasswordHasher, cfg Config, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if cfg.Iterations <= 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("iterations must be positive")
	}
	o := applyOptions(opts)
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		cfg:      cfg,
		logger:   o.logger,
		now:      o.now,
	}, nil
}

// dummySalt and dummyHash stand in for an absent account so that a lookup
// miss still pays for one full derivation. The hash is all zeros and no
// password derives to it.
var (
	dummySalt = []byte("ideaboard-dummy!")
	dummyHash = make([]byte, KeyLen)
)

// AuthResult is the outcome of a credential check.
type AuthResult struct {
	Authenticated bool
	Verified      bool
	// Account is set only when Authenticated is true.
	Account *Account
}

// Exists reports whether an account with username exists.
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	_, err := s.accounts.GetByUsername(ctx, username)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, oops.Code("AUTH_EXISTS_FAILED").
		With("operation", "get account by username").
		Wrap(err)
}

// Authenticate checks username and password. A wrong password or unknown
// user is a negative result, not an error; errors are store failures.
func (s *Service) Authenticate(ctx context.Context, username, password string) (result AuthResult, err error) {
	ctx, end := startSpan(ctx, "auth.authenticate", username)
	defer end(&err)

	account, lookupErr := s.accounts.GetByUsername(ctx, username)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by username").
			Wrap(lookupErr)
	}

	if account == nil {
		// Pay for a derivation anyway so absent users cost the same as present ones.
		//nolint:errcheck // result is irrelevant, only the time spent matters
		s.hasher.Verify(password, dummySalt, s.cfg.Iterations, dummyHash)
		return AuthResult{}, nil
	}

	valid, verifyErr := s.hasher.Verify(password, account.Salt, account.Iterations, account.PasswordHash)
	if verifyErr != nil {
		if errors.Is(verifyErr, ErrEmptyPassword) {
			return AuthResult{}, nil
		}
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !valid {
		return AuthResult{}, nil
	}

	return AuthResult{
		Authenticated: true,
		Verified:      account.IsVerified(),
		Account:       account,
	}, nil
}

// UpdatePassword replaces the credential of username with one derived from
// newPassword under a fresh salt and the configured iterations. When
// invalidateResetCode is true any active reset code is cleared in the same write.
func (s *Service) UpdatePassword(ctx context.Context, username, newPassword string, invalidateResetCode bool) (err error) {
	ctx, end := startSpan(ctx, "auth.update_password", username)
	defer end(&err)

	cred, err := NewCredentials(s.hasher, newPassword, s.cfg.Iterations)
	if err != nil {
		return oops.Code("PASSWORD_UPDATE_FAILED").
			With("operation", "derive credential").
			Wrap(err)
	}

	if err := s.accounts.UpdateCredentials(ctx, username, cred, invalidateResetCode); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("ACCOUNT_NOT_FOUND").
				With("username", username).
				Wrap(err)
		}
		return oops.Code("PASSWORD_UPDATE_FAILED").
			With("operation", "update credentials").
			Wrap(err)
	}
	return nil
}

// NewAccountParams holds the fields needed to sign up.
type NewAccountParams struct {
	Username   string
	Password   string
	GivenName  *string
	FamilyName *string
}

// CreateAccount derives the credential and stores a new unverified account.
func (s *Service) CreateAccount(ctx context.Context, params NewAccountParams) (account *Account, err error) {
	ctx, end := startSpan(ctx, "auth.create_account", params.Username)
	defer end(&err)

	if err := ValidateUsername(params.Username); err != nil {
		return nil, err
	}

	cred, err := NewCredentials(s.hasher, params.Password, s.cfg.Iterations)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "derive credential").
			Wrap(err)
	}

	account, err = NewAccount(params.Username, cred, s.now())
	if err != nil {
		return nil, err
	}
	account.GivenName = params.GivenName
	account.FamilyName = params.FamilyName

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code("USERNAME_TAKEN").
				With("username", params.Username).
				Wrap(err)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account created", "username", account.Username, "account_id", account.ID.String())
	return account, nil
}

// PurgeUnverified deletes accounts that never verified an email and were
// created more than maxAge ago.
func (s *Service) PurgeUnverified(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, oops.Code("PURGE_INVALID_AGE").
			With("max_age", maxAge.String()).
			Errorf("max age must be positive")
	}

	cutoff := s.now().Add(-maxAge)
	n, err := s.accounts.DeleteUnverifiedBefore(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("PURGE_FAILED").
			With("operation", "delete unverified accounts").
			With("cutoff", cutoff).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "purged unverified accounts", "count", n, "cutoff", cutoff)
	return n, nil
}
