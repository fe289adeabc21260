// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// VerificationService issues and consumes single-use codes for password
// reset and email verification. The two tracks are independent: issuing a
// code on one never touches the other.
type VerificationService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(accounts AccountRepository, hasher PasswordHasher, cfg Config, opts ...Option) (*VerificationService, error) {
	if accounts == nil {
		return nil, oops.Code("VERIFICATION_INVALID_SERVICE").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("VERIFICATION_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if cfg.CodeTTL <= 0 {
		return nil, oops.Code("VERIFICATION_INVALID_SERVICE").Errorf("code TTL must be positive")
	}
	if cfg.Iterations <= 0 {
		return nil, oops.Code("VERIFICATION_INVALID_SERVICE").Errorf("iterations must be positive")
	}
	o := applyOptions(opts)
	return &VerificationService{
		accounts: accounts,
		hasher:   hasher,
		cfg:      cfg,
		logger:   o.logger,
		now:      o.now,
	}, nil
}

// IssueResetCode resolves usernameOrEmail (username first, then verified
// email) and stores a fresh reset code, replacing any earlier one.
//
// ErrNotFound must reach the client as the same response as success.
// ErrUserNotVerified is surfaced as is, since there is nowhere to send the code.
func (s *VerificationService) IssueResetCode(ctx context.Context, usernameOrEmail string) (issued *IssuedCode, err error) {
	ctx, end := startSpan(ctx, "auth.issue_reset_code", usernameOrEmail)
	defer end(&err)

	account, err := s.resolve(ctx, usernameOrEmail)
	if err != nil {
		return nil, err
	}
	if !account.IsVerified() {
		return nil, oops.Code("USER_NOT_VERIFIED").
			With("username", account.Username).
			Wrap(ErrUserNotVerified)
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, oops.Code("RESET_ISSUE_FAILED").
			With("operation", "generate code").
			Wrap(err)
	}

	if err := s.accounts.SetPasswordResetCode(ctx, account.Username, HashCode(code), s.now()); err != nil {
		return nil, oops.Code("RESET_ISSUE_FAILED").
			With("operation", "store reset code").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset code issued", "username", account.Username)
	return &IssuedCode{Username: account.Username, Code: code, Email: *account.Email}, nil
}

// resolve finds an account by username, falling back to verified email.
func (s *VerificationService) resolve(ctx context.Context, usernameOrEmail string) (*Account, error) {
	account, err := s.accounts.GetByUsername(ctx, usernameOrEmail)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("RESET_ISSUE_FAILED").
			With("operation", "get account by username").
			Wrap(err)
	}

	if !strings.Contains(usernameOrEmail, "@") {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
	}

	account, err = s.accounts.GetByEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
		}
		return nil, oops.Code("RESET_ISSUE_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// CheckResetCode validates code against the active reset code of username
// without consuming it.
func (s *VerificationService) CheckResetCode(ctx context.Context, username, code string) (err error) {
	ctx, end := startSpan(ctx, "auth.check_reset_code", username)
	defer end(&err)

	account, err := s.lookup(ctx, username, "RESET_CHECK_FAILED")
	if err != nil {
		return err
	}
	return s.checkCode(code, account.PasswordResetCodeHash, account.PasswordResetCodeIssuedAt)
}

// ResetPassword checks code and, in one conditional write, replaces the
// credential of username and clears the reset code. If another request
// consumed or replaced the code in between, ErrInvalidCode is returned and
// nothing is written.
func (s *VerificationService) ResetPassword(ctx context.Context, username, code, newPassword string) (err error) {
	ctx, end := startSpan(ctx, "auth.reset_password", username)
	defer end(&err)

	if newPassword == "" {
		return oops.Code("AUTH_EMPTY_PASSWORD").With("operation", "reset password").Wrap(ErrEmptyPassword)
	}

	if err := s.CheckResetCode(ctx, username, code); err != nil {
		return err
	}

	cred, err := NewCredentials(s.hasher, newPassword, s.cfg.Iterations)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "derive credential").
			Wrap(err)
	}

	ok, err := s.accounts.ConsumePasswordResetCode(ctx, username, HashCode(code), s.notBefore(), cred)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "consume reset code").
			Wrap(err)
	}
	if !ok {
		return oops.Code("CODE_INVALID").Wrap(ErrInvalidCode)
	}

	s.logger.InfoContext(ctx, "password reset", "username", username)
	return nil
}

// IssueEmailVerificationCode records newEmail as pending for username and
// stores a fresh verification code, replacing any earlier one.
func (s *VerificationService) IssueEmailVerificationCode(ctx context.Context, username, newEmail string) (issued *IssuedCode, err error) {
	ctx, end := startSpan(ctx, "auth.issue_email_code", username)
	defer end(&err)

	if strings.TrimSpace(newEmail) == "" {
		return nil, oops.Code("EMAIL_INVALID").Errorf("email cannot be empty")
	}

	account, err := s.lookup(ctx, username, "EMAIL_ISSUE_FAILED")
	if err != nil {
		return nil, err
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, oops.Code("EMAIL_ISSUE_FAILED").
			With("operation", "generate code").
			Wrap(err)
	}

	if err := s.accounts.SetEmailVerificationCode(ctx, account.Username, newEmail, HashCode(code), s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(err)
		}
		return nil, oops.Code("EMAIL_ISSUE_FAILED").
			With("operation", "store verification code").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "email verification code issued", "username", account.Username)
	return &IssuedCode{Username: account.Username, Code: code, Email: newEmail}, nil
}

// ConsumeEmailVerificationCode confirms the pending email of username.
// ErrNoPendingEmail is reported before any code check.
func (s *VerificationService) ConsumeEmailVerificationCode(ctx context.Context, username, code string) (err error) {
	ctx, end := startSpan(ctx, "auth.consume_email_code", username)
	defer end(&err)

	account, err := s.lookup(ctx, username, "EMAIL_VERIFY_FAILED")
	if err != nil {
		return err
	}
	if account.PendingEmail == nil {
		return oops.Code("NO_PENDING_EMAIL").
			With("username", username).
			Wrap(ErrNoPendingEmail)
	}
	if err := s.checkCode(code, account.EmailVerificationCodeHash, account.EmailVerificationCodeIssuedAt); err != nil {
		return err
	}

	ok, err := s.accounts.ConfirmPendingEmail(ctx, account.Username, HashCode(code), s.notBefore())
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return oops.Code("EMAIL_TAKEN").With("username", username).Wrap(err)
		}
		return oops.Code("EMAIL_VERIFY_FAILED").
			With("operation", "confirm pending email").
			Wrap(err)
	}
	if !ok {
		return oops.Code("CODE_INVALID").Wrap(ErrInvalidCode)
	}

	s.logger.InfoContext(ctx, "email verified", "username", account.Username)
	return nil
}

func (s *VerificationService) lookup(ctx context.Context, username, failCode string) (*Account, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(err)
		}
		return nil, oops.Code(failCode).
			With("operation", "get account by username").
			Wrap(err)
	}
	return account, nil
}

// checkCode folds every failure (no code, mismatch, expiry) into ErrInvalidCode.
func (s *VerificationService) checkCode(code string, storedHash *string, issuedAt *time.Time) error {
	if storedHash == nil || issuedAt == nil {
		return oops.Code("CODE_INVALID").Wrap(ErrInvalidCode)
	}
	matched := MatchCode(code, *storedHash)
	if !matched || CodeExpired(*issuedAt, s.now(), s.cfg.CodeTTL) {
		return oops.Code("CODE_INVALID").Wrap(ErrInvalidCode)
	}
	return nil
}

// notBefore is the earliest issue time still inside the TTL.
func (s *VerificationService) notBefore() time.Time {
	return s.now().Add(-s.cfg.CodeTTL)
}
