// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package mocks provides testify mocks of the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ideaboard/ideaboard/internal/auth"
)

// MockAccountRepository is a mock of auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock that asserts its expectations on cleanup.
func NewMockAccountRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	args := m.Called(ctx, username)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountRepository) UpdateCredentials(ctx context.Context, username string, cred auth.Credentials, clearResetCode bool) error {
	args := m.Called(ctx, username, cred, clearResetCode)
	return args.Error(0)
}

func (m *MockAccountRepository) SetPasswordResetCode(ctx context.Context, username, codeHash string, issuedAt time.Time) error {
	args := m.Called(ctx, username, codeHash, issuedAt)
	return args.Error(0)
}

func (m *MockAccountRepository) ConsumePasswordResetCode(ctx context.Context, username, codeHash string, issuedAfter time.Time, cred auth.Credentials) (bool, error) {
	args := m.Called(ctx, username, codeHash, issuedAfter, cred)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) SetEmailVerificationCode(ctx context.Context, username, pendingEmail, codeHash string, issuedAt time.Time) error {
	args := m.Called(ctx, username, pendingEmail, codeHash, issuedAt)
	return args.Error(0)
}

func (m *MockAccountRepository) ConfirmPendingEmail(ctx context.Context, username, codeHash string, issuedAfter time.Time) (bool, error) {
	args := m.Called(ctx, username, codeHash, issuedAfter)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

var _ auth.AccountRepository = (*MockAccountRepository)(nil)
