// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// MinPasswordLength is the shortest password ValidateStrength accepts.
const MinPasswordLength = 8

// PasswordSpecialChars is the fixed set of accepted special characters.
const PasswordSpecialChars = "@$!%*?&"

// WeakPasswordMessage describes the strength rule to end users.
const WeakPasswordMessage = "Password must be at least 8 characters long and contain uppercase, lowercase, digit, and special character"

// PasswordPolicy validates password strength and hashes/verifies passwords.
//
// New hashes are produced by the primary hasher. Verification picks whichever
// known hasher owns the stored hash, so accounts hashed under a previous
// configuration keep working.
type PasswordPolicy struct {
	primary PasswordHasher
	known   []PasswordHasher
}

// NewPasswordPolicy creates a policy hashing with primary. Additional hashers
// are consulted only for verification.
func NewPasswordPolicy(primary PasswordHasher, verifiers ...PasswordHasher) (*PasswordPolicy, error) {
	if primary == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	known := make([]PasswordHasher, 0, 1+len(verifiers))
	known = append(known, primary)
	for _, v := range verifiers {
		if v != nil {
			known = append(known, v)
		}
	}
	return &PasswordPolicy{primary: primary, known: known}, nil
}

// NewDefaultPasswordPolicy hashes with bcrypt at DefaultBcryptCost and also
// verifies argon2id hashes.
func NewDefaultPasswordPolicy() *PasswordPolicy {
	bc, _ := NewBcryptHasher(DefaultBcryptCost) //nolint:errcheck // constant cost is in range
	p, _ := NewPasswordPolicy(bc, NewArgon2idHasher()) //nolint:errcheck // non-nil primary
	return p
}

// ValidateStrength reports whether password is at least MinPasswordLength
// long, contains an uppercase letter, a lowercase letter, a digit and a
// special character, and uses no characters outside [A-Za-z0-9] plus
// PasswordSpecialChars.
func (p *PasswordPolicy) ValidateStrength(password string) bool {
	if len(password) < MinPasswordLength {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(PasswordSpecialChars, r):
			special = true
		default:
			return false
		}
	}
	return upper && lower && digit && special
}

// Hash produces a salted hash of plaintext with the primary hasher.
func (p *PasswordPolicy) Hash(plaintext string) (string, error) {
	return p.primary.Hash(plaintext)
}

// Verify reports whether plaintext matches hash. Malformed or unrecognised
// hashes never match.
func (p *PasswordPolicy) Verify(plaintext, hash string) bool {
	ok, _ := p.Check(plaintext, hash) //nolint:errcheck // unusable hashes never match
	return ok
}

// Check is Verify with the reason a stored hash could not be used.
// A mismatch is (false, nil); a malformed or unrecognised hash is an
// AUTH_INVALID_HASH error.
func (p *PasswordPolicy) Check(plaintext, hash string) (bool, error) {
	for _, h := range p.known {
		if !h.Owns(hash) {
			continue
		}
		ok, err := h.Verify(plaintext, hash)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").Errorf("no known hasher owns the stored hash")
}
