// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package postgres implements auth.AccountRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/store"
)

const selectAccount = `
	SELECT a.id, a.username, a.password_hash, a.salt, a.iterations,
	       a.email, a.pending_email,
	       a.email_verification_code_hash, a.email_verification_code_issued_at,
	       a.password_reset_code_hash, a.password_reset_code_issued_at,
	       a.given_name, a.family_name,
	       p.account_id IS NOT NULL, p.given_name, p.family_name,
	       a.created_at, a.updated_at
	FROM accounts a
	LEFT JOIN profiles p ON p.account_id = a.id
`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool store.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool store.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, username, password_hash, salt, iterations,
			email, pending_email, given_name, family_name,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		account.ID.String(),
		account.Username,
		account.PasswordHash,
		account.Salt,
		account.Iterations,
		account.Email,
		account.PendingEmail,
		account.GivenName,
		account.FamilyName,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("ACCOUNT_EXISTS").
				With("username", account.Username).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername retrieves an account by username (case-insensitive).
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`WHERE LOWER(a.username) = LOWER($1)`, username)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by verified email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`WHERE LOWER(a.email) = LOWER($1)`, email)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// UpdateCredentials replaces the credential, optionally clearing the reset code.
func (r *AccountRepository) UpdateCredentials(ctx context.Context, username string, cred auth.Credentials, clearResetCode bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			password_hash = $2,
			salt = $3,
			iterations = $4,
			password_reset_code_hash = CASE WHEN $5::boolean THEN NULL ELSE password_reset_code_hash END,
			password_reset_code_issued_at = CASE WHEN $5::boolean THEN NULL ELSE password_reset_code_issued_at END,
			updated_at = now()
		WHERE LOWER(username) = LOWER($1)
	`, username, cred.PasswordHash, cred.Salt, cred.Iterations, clearResetCode)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update credentials").
			With("username", username).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetPasswordResetCode stores a reset code hash, replacing any previous one.
func (r *AccountRepository) SetPasswordResetCode(ctx context.Context, username, codeHash string, issuedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			password_reset_code_hash = $2,
			password_reset_code_issued_at = $3,
			updated_at = now()
		WHERE LOWER(username) = LOWER($1)
	`, username, codeHash, issuedAt)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "set reset code").
			With("username", username).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumePasswordResetCode swaps the credential and clears the code in one
// statement, guarded by the code hash and issue time.
func (r *AccountRepository) ConsumePasswordResetCode(ctx context.Context, username, codeHash string, issuedAfter time.Time, cred auth.Credentials) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			password_hash = $4,
			salt = $5,
			iterations = $6,
			password_reset_code_hash = NULL,
			password_reset_code_issued_at = NULL,
			updated_at = now()
		WHERE LOWER(username) = LOWER($1)
		  AND password_reset_code_hash = $2
		  AND password_reset_code_issued_at >= $3
	`, username, codeHash, issuedAfter, cred.PasswordHash, cred.Salt, cred.Iterations)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "consume reset code").
			With("username", username).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// SetEmailVerificationCode records pendingEmail with a fresh code hash.
func (r *AccountRepository) SetEmailVerificationCode(ctx context.Context, username, pendingEmail, codeHash string, issuedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			pending_email = $2,
			email_verification_code_hash = $3,
			email_verification_code_issued_at = $4,
			updated_at = now()
		WHERE LOWER(username) = LOWER($1)
	`, username, pendingEmail, codeHash, issuedAt)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "set verification code").
			With("username", username).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConfirmPendingEmail promotes the pending email in one guarded statement.
// The unique email index turns a taken address into auth.ErrConflict.
func (r *AccountRepository) ConfirmPendingEmail(ctx context.Context, username, codeHash string, issuedAfter time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			email = pending_email,
			pending_email = NULL,
			email_verification_code_hash = NULL,
			email_verification_code_issued_at = NULL,
			updated_at = now()
		WHERE LOWER(username) = LOWER($1)
		  AND pending_email IS NOT NULL
		  AND email_verification_code_hash = $2
		  AND email_verification_code_issued_at >= $3
	`, username, codeHash, issuedAfter)
	if err != nil {
		if isUniqueViolation(err) {
			return false, oops.Code("EMAIL_EXISTS").
				With("username", username).
				Wrap(auth.ErrConflict)
		}
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "confirm pending email").
			With("username", username).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteUnverifiedBefore removes never-verified accounts created before cutoff.
func (r *AccountRepository) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM accounts
		WHERE email IS NULL AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete unverified accounts").
			With("cutoff", cutoff).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a            auth.Account
		id           string
		hasProfile   bool
		profileGiven *string
		profileFam   *string
	)
	err := row.Scan(
		&id, &a.Username, &a.PasswordHash, &a.Salt, &a.Iterations,
		&a.Email, &a.PendingEmail,
		&a.EmailVerificationCodeHash, &a.EmailVerificationCodeIssuedAt,
		&a.PasswordResetCodeHash, &a.PasswordResetCodeIssuedAt,
		&a.GivenName, &a.FamilyName,
		&hasProfile, &profileGiven, &profileFam,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.With("operation", "parse account id").With("id", id).Wrap(err)
	}
	if hasProfile {
		a.Profile = &auth.Profile{GivenName: profileGiven, FamilyName: profileFam}
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
