// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/auth/postgres"
)

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.AccountRepository
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewAccountRepository(testPool)
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	newAccount := func(username string, email *string) *auth.Account {
		cred, err := auth.NewCredentials(auth.NewPBKDF2Hasher(), "password123", 16)
		Expect(err).NotTo(HaveOccurred())
		account, err := auth.NewAccount(username, cred, now)
		Expect(err).NotTo(HaveOccurred())
		account.Email = email
		Expect(repo.Create(ctx, account)).To(Succeed())
		return account
	}

	Describe("Create and lookup", func() {
		It("round-trips the record case-insensitively", func() {
			created := newAccount("Alice", strPtr("alice@example.com"))

			stored, err := repo.GetByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).To(Equal(created.ID))
			Expect(stored.Username).To(Equal("Alice"))
			Expect(stored.PasswordHash).To(Equal(created.PasswordHash))
			Expect(stored.Salt).To(Equal(created.Salt))
			Expect(stored.Iterations).To(Equal(16))
			Expect(stored.Profile).To(BeNil())

			byEmail, err := repo.GetByEmail(ctx, "ALICE@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(created.ID))
		})

		It("rejects a duplicate username regardless of case", func() {
			newAccount("alice", nil)
			cred, err := auth.NewCredentials(auth.NewPBKDF2Hasher(), "x", 16)
			Expect(err).NotTo(HaveOccurred())
			dup, err := auth.NewAccount("ALICE", cred, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, dup)).To(MatchError(auth.ErrConflict))
		})

		It("does not find accounts by pending email", func() {
			newAccount("bob", nil)
			Expect(repo.SetEmailVerificationCode(ctx, "bob", "bob@example.com", "digest", now)).To(Succeed())
			_, err := repo.GetByEmail(ctx, "bob@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("joins the profile", func() {
			account := newAccount("carol", nil)
			_, err := testPool.Exec(ctx,
				`INSERT INTO profiles (account_id, given_name) VALUES ($1, $2)`,
				account.ID.String(), "Caro")
			Expect(err).NotTo(HaveOccurred())

			stored, err := repo.GetByUsername(ctx, "carol")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Profile).NotTo(BeNil())
			Expect(*stored.Profile.GivenName).To(Equal("Caro"))
			Expect(stored.Profile.FamilyName).To(BeNil())
		})
	})

	Describe("reset codes", func() {
		It("consumes a code exactly once", func() {
			newAccount("alice", strPtr("alice@example.com"))
			Expect(repo.SetPasswordResetCode(ctx, "alice", "digest", now)).To(Succeed())

			cred, err := auth.NewCredentials(auth.NewPBKDF2Hasher(), "NewPass123!", 16)
			Expect(err).NotTo(HaveOccurred())

			ok, err := repo.ConsumePasswordResetCode(ctx, "alice", "digest", now.Add(-time.Hour), cred)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = repo.ConsumePasswordResetCode(ctx, "alice", "digest", now.Add(-time.Hour), cred)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			stored, err := repo.GetByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordHash).To(Equal(cred.PasswordHash))
			Expect(stored.PasswordResetCodeHash).To(BeNil())
		})

		It("rejects a code issued before the cutoff", func() {
			newAccount("alice", strPtr("alice@example.com"))
			Expect(repo.SetPasswordResetCode(ctx, "alice", "digest", now.Add(-2*time.Hour))).To(Succeed())

			ok, err := repo.ConsumePasswordResetCode(ctx, "alice", "digest", now.Add(-time.Hour), auth.Credentials{
				PasswordHash: []byte("h"), Salt: []byte("s"), Iterations: 1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("lets one of many concurrent consumers win", func() {
			newAccount("alice", strPtr("alice@example.com"))
			Expect(repo.SetPasswordResetCode(ctx, "alice", "digest", now)).To(Succeed())

			const workers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					ok, err := repo.ConsumePasswordResetCode(ctx, "alice", "digest", now.Add(-time.Hour), auth.Credentials{
						PasswordHash: []byte("h"), Salt: []byte("s"), Iterations: 1,
					})
					Expect(err).NotTo(HaveOccurred())
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})

		It("clears the code on a credential update when asked", func() {
			newAccount("alice", strPtr("alice@example.com"))
			Expect(repo.SetPasswordResetCode(ctx, "alice", "digest", now)).To(Succeed())

			cred := auth.Credentials{PasswordHash: []byte("h"), Salt: []byte("s"), Iterations: 1}
			Expect(repo.UpdateCredentials(ctx, "alice", cred, false)).To(Succeed())
			stored, err := repo.GetByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordResetCodeHash).NotTo(BeNil())

			Expect(repo.UpdateCredentials(ctx, "alice", cred, true)).To(Succeed())
			stored, err = repo.GetByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordResetCodeHash).To(BeNil())
			Expect(stored.PasswordResetCodeIssuedAt).To(BeNil())
		})

		It("reports unknown users", func() {
			err := repo.UpdateCredentials(ctx, "nobody", auth.Credentials{
				PasswordHash: []byte("h"), Salt: []byte("s"), Iterations: 1,
			}, true)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("email verification", func() {
		It("promotes the pending email", func() {
			newAccount("bob", nil)
			Expect(repo.SetEmailVerificationCode(ctx, "bob", "bob@example.com", "digest", now)).To(Succeed())

			ok, err := repo.ConfirmPendingEmail(ctx, "bob", "digest", now.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			stored, err := repo.GetByUsername(ctx, "bob")
			Expect(err).NotTo(HaveOccurred())
			Expect(*stored.Email).To(Equal("bob@example.com"))
			Expect(stored.PendingEmail).To(BeNil())
			Expect(stored.EmailVerificationCodeHash).To(BeNil())
		})

		It("maps a taken email to a conflict", func() {
			newAccount("alice", strPtr("shared@example.com"))
			newAccount("bob", nil)
			Expect(repo.SetEmailVerificationCode(ctx, "bob", "Shared@example.com", "digest", now)).To(Succeed())

			_, err := repo.ConfirmPendingEmail(ctx, "bob", "digest", now.Add(-time.Hour))
			Expect(err).To(MatchError(auth.ErrConflict))
		})
	})

	Describe("DeleteUnverifiedBefore", func() {
		It("removes only old unverified accounts", func() {
			old := now.Add(-96 * time.Hour)
			for _, a := range []struct {
				name  string
				email *string
				at    time.Time
			}{
				{"old-unverified", nil, old},
				{"old-verified", strPtr("v@example.com"), old},
				{"new-unverified", nil, now},
			} {
				cred, err := auth.NewCredentials(auth.NewPBKDF2Hasher(), "pw", 16)
				Expect(err).NotTo(HaveOccurred())
				account, err := auth.NewAccount(a.name, cred, a.at)
				Expect(err).NotTo(HaveOccurred())
				account.Email = a.email
				Expect(repo.Create(ctx, account)).To(Succeed())
			}

			n, err := repo.DeleteUnverifiedBefore(ctx, now.Add(-72*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			_, err = repo.GetByUsername(ctx, "old-unverified")
			Expect(err).To(MatchError(auth.ErrNotFound))
			_, err = repo.GetByUsername(ctx, "old-verified")
			Expect(err).NotTo(HaveOccurred())
			_, err = repo.GetByUsername(ctx, "new-unverified")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
