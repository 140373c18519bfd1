// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

// fieldValidator is safe for concurrent use once constructed.
var fieldValidator = validator.New(validator.WithRequiredStructEnabled())

// Account is a registered identity.
// PasswordHash always holds a one-way hash, never plaintext.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewAccount creates a validated Account ready to be stored.
// The ID is zero until the repository assigns one.
func NewAccount(username, email, passwordHash string) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &Account{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// ValidateUsername checks that a username is non-blank and between
// MinUsernameLength and MaxUsernameLength characters long.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			With("max", MaxUsernameLength).
			With("length", n).
			Errorf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	return nil
}

// ValidateEmail checks that an email address is non-blank and well formed.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if err := fieldValidator.Var(email, "email"); err != nil {
		return oops.Code("AUTH_INVALID_EMAIL").With("email", email).Wrap(err)
	}
	return nil
}

// AccountRepository is the durable, unique-keyed account store.
// Lookups are exact matches. Create assigns ID and must report uniqueness
// violations by wrapping ErrDuplicateUsername or ErrDuplicateEmail.
type AccountRepository interface {
	// ExistsByUsername reports whether an account owns the username.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail reports whether an account owns the email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// GetByUsername returns ErrNotFound if no account has the username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByEmail returns ErrNotFound if no account has the email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Create stores a new account and sets its ID.
	Create(ctx context.Context, account *Account) error
}
