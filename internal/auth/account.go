// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 2
	MaxUsernameLength = 32
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, dashes and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Profile holds optional display fields kept apart from the credential record.
type Profile struct {
	GivenName  *string
	FamilyName *string
}

// Account is the credential record of a user.
type Account struct {
	ID       ulid.ULID
	Username string

	PasswordHash []byte `json:"-"`
	Salt         []byte `json:"-"`
	Iterations   int    `json:"-"`

	// Email is the verified address, nil until a verification succeeds.
	Email        *string
	PendingEmail *string

	EmailVerificationCodeHash     *string    `json:"-"`
	EmailVerificationCodeIssuedAt *time.Time `json:"-"`
	PasswordResetCodeHash         *string    `json:"-"`
	PasswordResetCodeIssuedAt     *time.Time `json:"-"`

	GivenName  *string
	FamilyName *string
	Profile    *Profile

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsVerified returns true if the account has a confirmed email.
func (a *Account) IsVerified() bool {
	return a.Email != nil
}

// DisplayNames returns the given and family names, preferring the profile
// fields and falling back to the record's own.
func (a *Account) DisplayNames() (givenName, familyName *string) {
	givenName, familyName = a.GivenName, a.FamilyName
	if a.Profile != nil {
		if a.Profile.GivenName != nil {
			givenName = a.Profile.GivenName
		}
		if a.Profile.FamilyName != nil {
			familyName = a.Profile.FamilyName
		}
	}
	return givenName, familyName
}

// NewAccount creates an Account with a validated username and credential.
func NewAccount(username string, cred Credentials, now time.Time) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if len(cred.PasswordHash) == 0 || len(cred.Salt) == 0 || cred.Iterations <= 0 {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS_RECORD").
			Errorf("credential must have hash, salt and positive iterations")
	}
	return &Account{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: cred.PasswordHash,
		Salt:         cred.Salt,
		Iterations:   cred.Iterations,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateUsername validates a username against rules.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, dashes and underscores")
	}
	return nil
}

// IssuedCode is a freshly issued verification code and where to deliver it.
// Code is plaintext and must only be handed to the mailer.
type IssuedCode struct {
	Username string
	Code     string
	Email    string
}

// AccountRepository manages account persistence. Lookups are case-insensitive.
// Methods that take a code hash are conditional updates: they apply only
// if the stored hash still matches, in a single atomic step.
type AccountRepository interface {
	// Create stores a new account. Returns ErrConflict if the username is taken.
	Create(ctx context.Context, account *Account) error

	// GetByUsername retrieves an account by username.
	// Returns ErrNotFound if no account has the given username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByEmail retrieves an account by its verified email.
	// Pending emails are not matched. Returns ErrNotFound if none matches.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpdateCredentials replaces the stored credential. When clearResetCode is
	// true the reset code is cleared in the same statement.
	// Returns ErrNotFound if the account does not exist.
	UpdateCredentials(ctx context.Context, username string, cred Credentials, clearResetCode bool) error

	// SetPasswordResetCode stores a reset code hash, replacing any previous one.
	SetPasswordResetCode(ctx context.Context, username, codeHash string, issuedAt time.Time) error

	// ConsumePasswordResetCode replaces the credential and clears the reset
	// code if the stored hash equals codeHash and was issued at or after
	// issuedAfter. Returns false if nothing matched.
	ConsumePasswordResetCode(ctx context.Context, username, codeHash string, issuedAfter time.Time, cred Credentials) (bool, error)

	// SetEmailVerificationCode stores pendingEmail with a fresh code hash,
	// replacing any previous code.
	SetEmailVerificationCode(ctx context.Context, username, pendingEmail, codeHash string, issuedAt time.Time) error

	// ConfirmPendingEmail moves the pending email into email and clears the
	// code if the stored hash equals codeHash and was issued at or after
	// issuedAfter. Returns false if nothing matched, ErrConflict if another
	// account already owns the email.
	ConfirmPendingEmail(ctx context.Context, username, codeHash string, issuedAfter time.Time) (bool, error)

	// DeleteUnverifiedBefore removes accounts with no verified email created
	// before cutoff, returning how many were removed.
	DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
