// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/keyward/keyward/pkg/errutil"
)

// Result messages.
const (
	MsgRegistered         = "User registered successfully"
	MsgLoginSuccessful    = "Login successful"
	MsgInvalidCredentials = "Invalid credentials"
	MsgUsernameEmpty      = "Username cannot be empty"
	MsgEmailEmpty         = "Email cannot be empty"
	MsgPasswordEmpty      = "Password cannot be empty"
	MsgUsernameLength     = "Username must be between 3 and 20 characters"
	MsgInvalidEmail       = "Invalid email format"
	MsgUsernameExists     = "Username already exists"
	MsgEmailExists        = "Email already exists"
	MsgRegisterServerErr  = "Registration failed due to server error"
	MsgLoginServerErr     = "Authentication failed due to server error"

	// MsgLockedFormat takes the remaining lockout minutes.
	MsgLockedFormat = "Account temporarily locked. Try again in %d minutes."
)

// dummyPasswordHash is verified when no account matches the identifier, so
// that unknown and known identifiers take comparable time.
//
//nolint:gosec // G101: intentionally fake bcrypt hash, never matches
const dummyPasswordHash = "$2a$12$CCCCCCCCCCCCCCCCCCCCC.CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"

// Service registers accounts and authenticates credentials, enforcing
// per-address lockout.
type Service struct {
	accounts AccountRepository
	policy   *PasswordPolicy
	tracker  AttemptTracker
	tokens   TokenIssuer
	audit    AuditSink
	logger   *slog.Logger
	exempt   []glob.Glob
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithLogger sets the logger used for infrastructure faults.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithLockoutExemptions exempts source addresses matching any of the glob
// patterns from lockout checks and failure counting.
func WithLockoutExemptions(patterns ...string) ServiceOption {
	return func(s *Service) error {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return oops.Code("AUTH_INVALID_CONFIG").With("pattern", p).Wrap(err)
			}
			s.exempt = append(s.exempt, g)
		}
		return nil
	}
}

// NewAuthService creates a Service. All dependencies are required.
func NewAuthService(
	accounts AccountRepository,
	policy *PasswordPolicy,
	tracker AttemptTracker,
	tokens TokenIssuer,
	audit AuditSink,
	opts ...ServiceOption,
) (*Service, error) {
	switch {
	case accounts == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("account repository is required")
	case policy == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password policy is required")
	case tracker == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("attempt tracker is required")
	case tokens == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token issuer is required")
	case audit == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("audit sink is required")
	}

	s := &Service{
		accounts: accounts,
		policy:   policy,
		tracker:  tracker,
		tokens:   tokens,
		audit:    audit,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register validates req, stores a new account and issues it a token.
func (s *Service) Register(ctx context.Context, req RegisterRequest, sourceAddress, userAgent string) AuthResult {
	reject := func(t AuditEventType, reason, msg string) AuthResult {
		ev := NewAuditEvent(t, sourceAddress, userAgent)
		ev.Username, ev.Email, ev.Reason = req.Username, req.Email, reason
		s.audit.Record(ctx, ev)
		return Failure(msg)
	}

	switch {
	case isBlank(req.Username):
		return reject(EventSecurityViolation, "Registration with empty username", MsgUsernameEmpty)
	case isBlank(req.Email):
		return reject(EventSecurityViolation, "Registration with empty email", MsgEmailEmpty)
	case isBlank(req.Password):
		return reject(EventSecurityViolation, "Registration with empty password", MsgPasswordEmpty)
	}
	if err := ValidateUsername(req.Username); err != nil {
		return reject(EventSecurityViolation, "Registration with invalid username length", MsgUsernameLength)
	}
	if err := ValidateEmail(req.Email); err != nil {
		return reject(EventSecurityViolation, "Registration with invalid email", MsgInvalidEmail)
	}
	if !s.policy.ValidateStrength(req.Password) {
		return reject(EventWeakPassword, "Password does not meet strength requirements", WeakPasswordMessage)
	}

	taken, err := s.accounts.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return s.serverError(ctx, MsgRegisterServerErr, "check username", err, req.Username, sourceAddress, userAgent)
	}
	if taken {
		return reject(EventSuspiciousActivity, "Registration with existing username", MsgUsernameExists)
	}
	taken, err = s.accounts.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return s.serverError(ctx, MsgRegisterServerErr, "check email", err, req.Username, sourceAddress, userAgent)
	}
	if taken {
		return reject(EventSuspiciousActivity, "Registration with existing email", MsgEmailExists)
	}

	hash, err := s.policy.Hash(req.Password)
	if err != nil {
		return s.serverError(ctx, MsgRegisterServerErr, "hash password", err, req.Username, sourceAddress, userAgent)
	}
	account, err := NewAccount(req.Username, req.Email, hash)
	if err != nil {
		return s.serverError(ctx, MsgRegisterServerErr, "build account", err, req.Username, sourceAddress, userAgent)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			return reject(EventSuspiciousActivity, "Registration with existing username", MsgUsernameExists)
		case errors.Is(err, ErrDuplicateEmail):
			return reject(EventSuspiciousActivity, "Registration with existing email", MsgEmailExists)
		}
		return s.serverError(ctx, MsgRegisterServerErr, "create account", err, req.Username, sourceAddress, userAgent)
	}

	token, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		return s.serverError(ctx, MsgRegisterServerErr, "issue token", err, req.Username, sourceAddress, userAgent)
	}

	ev := NewAuditEvent(EventUserRegistration, sourceAddress, userAgent)
	ev.Username, ev.Email = account.Username, account.Email
	s.audit.Record(ctx, ev)
	s.recordTokenIssued(ctx, account, "registration", sourceAddress, userAgent)

	return success(MsgRegistered, account, token)
}

// Authenticate verifies req against stored credentials. A locked source
// address is rejected before the account store is consulted.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest, sourceAddress, userAgent string) AuthResult {
	exempt := s.isExempt(sourceAddress)

	if !exempt {
		locked, err := s.tracker.IsLocked(ctx, sourceAddress)
		if err != nil {
			return s.serverError(ctx, MsgLoginServerErr, "check lockout", err, req.Identifier, sourceAddress, userAgent)
		}
		if locked {
			minutes, err := s.tracker.RemainingLockoutMinutes(ctx, sourceAddress)
			if err != nil {
				return s.serverError(ctx, MsgLoginServerErr, "remaining lockout", err, req.Identifier, sourceAddress, userAgent)
			}
			ev := NewAuditEvent(EventSecurityViolation, sourceAddress, userAgent)
			ev.Username = req.Identifier
			ev.Reason = "Login attempt from locked address"
			ev.Detail = fmt.Sprintf("%d minutes remaining", minutes)
			s.audit.Record(ctx, ev)
			return Failure(fmt.Sprintf(MsgLockedFormat, minutes))
		}
	}

	failLogin := func(reason, msg string) AuthResult {
		ev := NewAuditEvent(EventFailedLogin, sourceAddress, userAgent)
		ev.Username, ev.Reason = req.Identifier, reason
		s.audit.Record(ctx, ev)
		return Failure(msg)
	}
	switch {
	case isBlank(req.Identifier):
		return failLogin("Empty username", MsgUsernameEmpty)
	case isBlank(req.Password):
		return failLogin("Empty password", MsgPasswordEmpty)
	}

	account, err := s.lookup(ctx, req.Identifier)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return s.serverError(ctx, MsgLoginServerErr, "lookup account", err, req.Identifier, sourceAddress, userAgent)
	}

	hash := dummyPasswordHash
	if account != nil {
		hash = account.PasswordHash
	}
	valid, err := s.policy.Check(req.Password, hash)
	if err != nil && account != nil {
		errutil.LogErrorContext(ctx, s.logger, "stored password hash is unusable",
			oops.With("username", req.Identifier).Wrap(err))
	}

	if account == nil || !valid {
		reason := "Invalid password"
		if account == nil {
			reason = "User not found"
		}
		attempts := 0
		if !exempt {
			attempts, err = s.tracker.RecordFailure(ctx, sourceAddress)
			if err != nil {
				return s.serverError(ctx, MsgLoginServerErr, "record failure", err, req.Identifier, sourceAddress, userAgent)
			}
		}
		ev := NewAuditEvent(EventFailedLogin, sourceAddress, userAgent)
		ev.Username, ev.Reason, ev.Attempts = req.Identifier, reason, attempts
		s.audit.Record(ctx, ev)

		if !exempt && attempts >= s.tracker.MaxAttempts() {
			alert := NewAuditEvent(EventSecurityAlert, sourceAddress, userAgent)
			alert.Username = req.Identifier
			alert.Reason = "Too many failed login attempts"
			alert.Attempts = attempts
			s.audit.Record(ctx, alert)
		}
		return Failure(MsgInvalidCredentials)
	}

	if !exempt {
		if err := s.tracker.RecordSuccess(ctx, sourceAddress); err != nil {
			errutil.LogErrorContext(ctx, s.logger, "failed to clear login attempts", err)
		}
	}

	token, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		return s.serverError(ctx, MsgLoginServerErr, "issue token", err, req.Identifier, sourceAddress, userAgent)
	}

	ev := NewAuditEvent(EventSuccessfulLogin, sourceAddress, userAgent)
	ev.Username, ev.Email = account.Username, account.Email
	s.audit.Record(ctx, ev)
	s.recordTokenIssued(ctx, account, "login", sourceAddress, userAgent)

	return success(MsgLoginSuccessful, account, token)
}

// IsLocked reports whether sourceAddress is currently locked out.
func (s *Service) IsLocked(ctx context.Context, sourceAddress string) (bool, error) {
	if s.isExempt(sourceAddress) {
		return false, nil
	}
	locked, err := s.tracker.IsLocked(ctx, sourceAddress)
	if err != nil {
		return false, oops.Code("AUTH_TRACKER_FAILED").With("source_address", sourceAddress).Wrap(err)
	}
	return locked, nil
}

// RemainingLockoutMinutes returns the minutes left on the lock for sourceAddress.
func (s *Service) RemainingLockoutMinutes(ctx context.Context, sourceAddress string) (int, error) {
	if s.isExempt(sourceAddress) {
		return 0, nil
	}
	minutes, err := s.tracker.RemainingLockoutMinutes(ctx, sourceAddress)
	if err != nil {
		return 0, oops.Code("AUTH_TRACKER_FAILED").With("source_address", sourceAddress).Wrap(err)
	}
	return minutes, nil
}

// FailedAttemptCount returns the failure count recorded for sourceAddress.
func (s *Service) FailedAttemptCount(ctx context.Context, sourceAddress string) (int, error) {
	n, err := s.tracker.FailedAttemptCount(ctx, sourceAddress)
	if err != nil {
		return 0, oops.Code("AUTH_TRACKER_FAILED").With("source_address", sourceAddress).Wrap(err)
	}
	return n, nil
}

// lookup tries identifier as a username, then as an email.
func (s *Service) lookup(ctx context.Context, identifier string) (*Account, error) {
	account, err := s.accounts.GetByUsername(ctx, identifier)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.accounts.GetByEmail(ctx, identifier)
}

func (s *Service) isExempt(addr string) bool {
	for _, g := range s.exempt {
		if g.Match(addr) {
			return true
		}
	}
	return false
}

func (s *Service) recordTokenIssued(ctx context.Context, account *Account, reason, sourceAddress, userAgent string) {
	ev := NewAuditEvent(EventTokenIssued, sourceAddress, userAgent)
	ev.Username = account.Username
	ev.Reason = "Token issued"
	ev.Detail = reason
	s.audit.Record(ctx, ev)
}

func (s *Service) serverError(ctx context.Context, msg, operation string, err error, username, sourceAddress, userAgent string) AuthResult {
	wrapped := oops.Code("AUTH_SERVER_ERROR").
		With("operation", operation).
		With("source_address", sourceAddress).
		Wrap(err)
	errutil.LogErrorContext(ctx, s.logger, "authentication infrastructure failure", wrapped)

	ev := NewAuditEvent(EventSecurityViolation, sourceAddress, userAgent)
	ev.Username = username
	ev.Reason = msg
	ev.Detail = err.Error()
	s.audit.Record(ctx, ev)

	return Failure(msg + ": " + err.Error())
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
