// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package postgres implements auth persistence on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// Unique constraint names from the accounts migration.
const (
	usernameConstraint = "accounts_username_key"
	emailConstraint    = "accounts_email_key"
)

// querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements auth.AccountRepository using PostgreSQL.
// Comparisons are exact, so lookups are case-sensitive.
type AccountRepository struct {
	db querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// ExistsByUsername implements auth.AccountRepository.
func (r *AccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "exists by username").
			With("username", username).
			Wrap(err)
	}
	return exists, nil
}

// ExistsByEmail implements auth.AccountRepository.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "exists by email").
			With("email", email).
			Wrap(err)
	}
	return exists, nil
}

// GetByUsername implements auth.AccountRepository.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM accounts
		WHERE username = $1
	`, username)
	return r.scan(row, "username", username)
}

// GetByEmail implements auth.AccountRepository.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM accounts
		WHERE email = $1
	`, email)
	return r.scan(row, "email", email)
}

// Create inserts account and sets its ID and CreatedAt from the database.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO accounts (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, account.Username, account.Email, account.PasswordHash).Scan(&account.ID, &account.CreatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case usernameConstraint:
			return oops.Code("ACCOUNT_DUPLICATE").With("username", account.Username).Wrap(auth.ErrDuplicateUsername)
		case emailConstraint:
			return oops.Code("ACCOUNT_DUPLICATE").With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
		}
	}
	return oops.Code("ACCOUNT_CREATE_FAILED").
		With("operation", "insert account").
		With("username", account.Username).
		Wrap(err)
}

func (r *AccountRepository) scan(row pgx.Row, key, value string) (*auth.Account, error) {
	var a auth.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "get account by "+key).
			With(key, value).
			Wrap(err)
	}
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
