// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package authtest provides an in-memory auth.AccountRepository for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ideaboard/ideaboard/internal/auth"
)

// MemoryRepository is a mutex-guarded auth.AccountRepository. Conditional
// updates hold the lock across compare and write, matching the single
// statement semantics of the PostgreSQL implementation.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account // keyed by lower-cased username
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*auth.Account)}
}

func key(username string) string {
	return strings.ToLower(username)
}

// Create stores a copy of account.
func (r *MemoryRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[key(account.Username)]; ok {
		return auth.ErrConflict
	}
	r.accounts[key(account.Username)] = clone(account)
	return nil
}

// GetByUsername returns a copy of the stored account.
func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key(username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(a), nil
}

// GetByEmail returns a copy of the account whose verified email matches.
func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.byEmail(email); a != nil {
		return clone(a), nil
	}
	return nil, auth.ErrNotFound
}

func (r *MemoryRepository) byEmail(email string) *auth.Account {
	for _, a := range r.accounts {
		if a.Email != nil && strings.EqualFold(*a.Email, email) {
			return a
		}
	}
	return nil
}

// UpdateCredentials replaces the credential.
func (r *MemoryRepository) UpdateCredentials(_ context.Context, username string, cred auth.Credentials, clearResetCode bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key(username)]
	if !ok {
		return auth.ErrNotFound
	}
	setCredentials(a, cred)
	if clearResetCode {
		a.PasswordResetCodeHash = nil
		a.PasswordResetCodeIssuedAt = nil
	}
	return nil
}

// SetPasswordResetCode overwrites the reset code.
func (r *MemoryRepository) SetPasswordResetCode(_ context.Context, username, codeHash string, issuedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key(username)]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordResetCodeHash = &codeHash
	a.PasswordResetCodeIssuedAt = &issuedAt
	return nil
}

// ConsumePasswordResetCode is the compare-and-set for the reset track.
func (r *MemoryRepository) ConsumePasswordResetCode(_ context.Context, username, codeHash string, issuedAfter time.Time, cred auth.Credentials) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key(username)]
	if !ok || !codeMatches(a.PasswordResetCodeHash, a.PasswordResetCodeIssuedAt, codeHash, issuedAfter) {
		return false, nil
	}
	setCredentials(a, cred)
	a.PasswordResetCodeHash = nil
	a.PasswordResetCodeIssuedAt = nil
	return true, nil
}

// SetEmailVerificationCode sets the pending email and overwrites the code.
func (r *MemoryRepository) SetEmailVerificationCode(_ context.Context, username, pendingEmail, codeHash string, issuedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key(username)]
	if !ok {
		return auth.ErrNotFound
	}
	a.PendingEmail = &pendingEmail
	a.EmailVerificationCodeHash = &codeHash
	a.EmailVerificationCodeIssuedAt = &issuedAt
	return nil
}

// ConfirmPendingEmail is the compare-and-set for the email track.
func (r *MemoryRepository) ConfirmPendingEmail(_ context.Context, username, codeHash string, issuedAfter time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key(username)]
	if !ok || a.PendingEmail == nil ||
		!codeMatches(a.EmailVerificationCodeHash, a.EmailVerificationCodeIssuedAt, codeHash, issuedAfter) {
		return false, nil
	}
	if owner := r.byEmail(*a.PendingEmail); owner != nil && owner != a {
		return false, auth.ErrConflict
	}
	a.Email = a.PendingEmail
	a.PendingEmail = nil
	a.EmailVerificationCodeHash = nil
	a.EmailVerificationCodeIssuedAt = nil
	return true, nil
}

// DeleteUnverifiedBefore removes unverified accounts created before cutoff.
func (r *MemoryRepository) DeleteUnverifiedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, a := range r.accounts {
		if a.Email == nil && a.CreatedAt.Before(cutoff) {
			delete(r.accounts, k)
			n++
		}
	}
	return n, nil
}

// Put stores account as is, replacing any existing one. Test setup only.
func (r *MemoryRepository) Put(account *auth.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[key(account.Username)] = clone(account)
}

func codeMatches(stored *string, issuedAt *time.Time, codeHash string, issuedAfter time.Time) bool {
	return stored != nil && issuedAt != nil && *stored == codeHash && !issuedAt.Before(issuedAfter)
}

func setCredentials(a *auth.Account, cred auth.Credentials) {
	a.PasswordHash = cred.PasswordHash
	a.Salt = cred.Salt
	a.Iterations = cred.Iterations
}

func clone(a *auth.Account) *auth.Account {
	c := *a
	if a.Profile != nil {
		p := *a.Profile
		c.Profile = &p
	}
	return &c
}

var _ auth.AccountRepository = (*MemoryRepository)(nil)
