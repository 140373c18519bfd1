// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/keyward/keyward/internal/auth"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockAccountRepository is a mock of auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock that asserts its expectations on cleanup.
func NewMockAccountRepository(t testingT) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
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

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockAttemptTracker is a mock of auth.AttemptTracker.
type MockAttemptTracker struct {
	mock.Mock
}

// NewMockAttemptTracker creates a mock that asserts its expectations on cleanup.
func NewMockAttemptTracker(t testingT) *MockAttemptTracker {
	m := &MockAttemptTracker{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAttemptTracker) RecordFailure(ctx context.Context, addr string) (int, error) {
	args := m.Called(ctx, addr)
	return args.Int(0), args.Error(1)
}

func (m *MockAttemptTracker) RecordSuccess(ctx context.Context, addr string) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *MockAttemptTracker) IsLocked(ctx context.Context, addr string) (bool, error) {
	args := m.Called(ctx, addr)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptTracker) RemainingLockoutMinutes(ctx context.Context, addr string) (int, error) {
	args := m.Called(ctx, addr)
	return args.Int(0), args.Error(1)
}

func (m *MockAttemptTracker) FailedAttemptCount(ctx context.Context, addr string) (int, error) {
	args := m.Called(ctx, addr)
	return args.Int(0), args.Error(1)
}

func (m *MockAttemptTracker) MaxAttempts() int {
	args := m.Called()
	return args.Int(0)
}

// MockTokenIssuer is a mock of auth.TokenIssuer.
type MockTokenIssuer struct {
	mock.Mock
}

// NewMockTokenIssuer creates a mock that asserts its expectations on cleanup.
func NewMockTokenIssuer(t testingT) *MockTokenIssuer {
	m := &MockTokenIssuer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenIssuer) Issue(subjectID int64, username string) (string, error) {
	args := m.Called(subjectID, username)
	return args.String(0), args.Error(1)
}

// MockAuditSink is a mock of auth.AuditSink.
type MockAuditSink struct {
	mock.Mock
}

// NewMockAuditSink creates a mock that asserts its expectations on cleanup.
func NewMockAuditSink(t testingT) *MockAuditSink {
	m := &MockAuditSink{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAuditSink) Record(ctx context.Context, event auth.AuditEvent) {
	m.Called(ctx, event)
}

var (
	_ auth.AccountRepository = (*MockAccountRepository)(nil)
	_ auth.AttemptTracker    = (*MockAttemptTracker)(nil)
	_ auth.TokenIssuer       = (*MockTokenIssuer)(nil)
	_ auth.AuditSink         = (*MockAuditSink)(nil)
)
