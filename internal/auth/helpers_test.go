// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/auth/authtest"
)

// testConfig keeps iterations low so derivations stay fast.
func testConfig() auth.Config {
	return auth.Config{
		Iterations:      16,
		CodeTTL:         time.Hour,
		TokenSecret:     []byte(strings.Repeat("k", auth.MinTokenSecretLen)),
		TokenExpiration: 3 * time.Hour,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(s string) *string { return &s }

// fixture wires real services over an in-memory repository.
type fixture struct {
	repo   *authtest.MemoryRepository
	clock  *fakeClock
	auth   *auth.Service
	verify *auth.VerificationService
	tokens *auth.TokenService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	repo := authtest.NewMemoryRepository()
	clock := newFakeClock()
	hasher := auth.NewPBKDF2Hasher()

	authSvc, err := auth.NewAuthService(repo, hasher, cfg, auth.WithClock(clock.Now))
	require.NoError(t, err)
	verifySvc, err := auth.NewVerificationService(repo, hasher, cfg, auth.WithClock(clock.Now))
	require.NoError(t, err)
	tokenSvc, err := auth.NewTokenService(cfg, auth.WithClock(clock.Now))
	require.NoError(t, err)

	return &fixture{repo: repo, clock: clock, auth: authSvc, verify: verifySvc, tokens: tokenSvc}
}

// addAccount stores an account with the given password and optional verified email.
func (f *fixture) addAccount(t *testing.T, username, password string, email *string) *auth.Account {
	t.Helper()
	cred, err := auth.NewCredentials(auth.NewPBKDF2Hasher(), password, testConfig().Iterations)
	require.NoError(t, err)
	account, err := auth.NewAccount(username, cred, f.clock.Now())
	require.NoError(t, err)
	account.Email = email
	f.repo.Put(account)
	return account
}
