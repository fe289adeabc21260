// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/ideaboard/ideaboard/internal/auth"
)

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Derive(password string, salt []byte, iterations int) ([]byte, error) {
	args := m.Called(password, salt, iterations)
	hash, _ := args.Get(0).([]byte)
	return hash, args.Error(1)
}

func (m *MockPasswordHasher) Verify(password string, salt []byte, iterations int, expected []byte) (bool, error) {
	args := m.Called(password, salt, iterations, expected)
	return args.Bool(0), args.Error(1)
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)
