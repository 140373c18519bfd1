// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package memory provides an in-process AccountRepository for tests and
// single-process tools.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// AccountRepository stores accounts in maps keyed by exact username and email.
type AccountRepository struct {
	mu         sync.RWMutex
	nextID     int64
	byUsername map[string]*auth.Account
	byEmail    map[string]*auth.Account
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byUsername: make(map[string]*auth.Account),
		byEmail:    make(map[string]*auth.Account),
	}
}

// ExistsByUsername implements auth.AccountRepository.
func (r *AccountRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUsername[username]
	return ok, nil
}

// ExistsByEmail implements auth.AccountRepository.
func (r *AccountRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

// GetByUsername implements auth.AccountRepository.
func (r *AccountRepository) GetByUsername(_ context.Context, username string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byUsername[username]
	if !ok {
		return nil, oops.With("username", username).Wrap(auth.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// GetByEmail implements auth.AccountRepository.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byEmail[email]
	if !ok {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// Create implements auth.AccountRepository. The uniqueness checks and the
// insert happen under one lock, so concurrent duplicates are rejected.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[account.Username]; ok {
		return oops.Code("ACCOUNT_DUPLICATE").With("username", account.Username).Wrap(auth.ErrDuplicateUsername)
	}
	if _, ok := r.byEmail[account.Email]; ok {
		return oops.Code("ACCOUNT_DUPLICATE").With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
	}

	r.nextID++
	account.ID = r.nextID
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	cp := *account
	r.byUsername[cp.Username] = &cp
	r.byEmail[cp.Email] = &cp
	return nil
}

// Len returns the number of stored accounts.
func (r *AccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUsername)
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
