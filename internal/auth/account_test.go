// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"minimum length", "abc", false},
		{"maximum length", strings.Repeat("a", 20), false},
		{"multibyte counted as characters", "ñandú", false},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 21), true},
		{"blank", "   ", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateUsername(tt.username)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_USERNAME")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"alice@x.com", false},
		{"first.last+tag@example.co.uk", false},
		{"", true},
		{"not-an-email", true},
		{"missing@", true},
		{"@missing.local", true},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_EMAIL")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewAccount(t *testing.T) {
	a, err := auth.NewAccount("alice123", "alice@x.com", "$2a$04$hash")
	require.NoError(t, err)
	assert.Zero(t, a.ID)
	assert.Equal(t, "alice123", a.Username)
	assert.False(t, a.CreatedAt.IsZero())

	_, err = auth.NewAccount("alice123", "alice@x.com", "")
	errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_HASH")

	_, err = auth.NewAccount("al", "alice@x.com", "$2a$04$hash")
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_USERNAME")
}
