// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/mocks"
	"github.com/keyward/keyward/pkg/errutil"
)

const (
	testAddr  = "203.0.113.10"
	testAgent = "keyward-test/1.0"
)

// recordingSink collects audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.AuditEvent
}

func (r *recordingSink) Record(_ context.Context, ev auth.AuditEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) types() []auth.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.AuditEventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recordingSink) last() auth.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type serviceFixture struct {
	svc      *auth.Service
	accounts *mocks.MockAccountRepository
	tracker  *auth.LockoutTracker
	tokens   *mocks.MockTokenIssuer
	sink     *recordingSink
	policy   *auth.PasswordPolicy
}

func newServiceFixture(t *testing.T, opts ...auth.ServiceOption) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		accounts: mocks.NewMockAccountRepository(t),
		tracker:  auth.NewLockoutTracker(),
		tokens:   mocks.NewMockTokenIssuer(t),
		sink:     &recordingSink{},
		policy:   newTestPolicy(t),
	}
	svc, err := auth.NewAuthService(f.accounts, f.policy, f.tracker.Attempts(), f.tokens, f.sink, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *serviceFixture) storedAccount(t *testing.T, password string) *auth.Account {
	t.Helper()
	hash, err := f.policy.Hash(password)
	require.NoError(t, err)
	return &auth.Account{ID: 1, Username: "testuser", Email: "test@example.com", PasswordHash: hash}
}

func TestNewAuthService_NilDependencies(t *testing.T) {
	accounts := mocks.NewMockAccountRepository(t)
	policy := newTestPolicy(t)
	tracker := mocks.NewMockAttemptTracker(t)
	tokens := mocks.NewMockTokenIssuer(t)
	sink := mocks.NewMockAuditSink(t)

	tests := []struct {
		name        string
		accounts    auth.AccountRepository
		policy      *auth.PasswordPolicy
		tracker     auth.AttemptTracker
		tokens      auth.TokenIssuer
		sink        auth.AuditSink
		expectError string
	}{
		{"nil account repository", nil, policy, tracker, tokens, sink, "account repository is required"},
		{"nil password policy", accounts, nil, tracker, tokens, sink, "password policy is required"},
		{"nil attempt tracker", accounts, policy, nil, tokens, sink, "attempt tracker is required"},
		{"nil token issuer", accounts, policy, tracker, nil, sink, "token issuer is required"},
		{"nil audit sink", accounts, policy, tracker, tokens, nil, "audit sink is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewAuthService(tt.accounts, tt.policy, tt.tracker, tt.tokens, tt.sink)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_SERVICE")
		})
	}
}

func TestNewAuthService_InvalidExemptionPattern(t *testing.T) {
	_, err := auth.NewAuthService(
		mocks.NewMockAccountRepository(t),
		newTestPolicy(t),
		auth.NewLockoutTracker().Attempts(),
		mocks.NewMockTokenIssuer(t),
		auth.NopSink{},
		auth.WithLockoutExemptions("[unterminated"),
	)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CONFIG")
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	valid := auth.RegisterRequest{Username: "testuser", Email: "test@example.com", Password: "Secur3!ab"}

	t.Run("successful registration hashes password and issues token", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("ExistsByUsername", ctx, "testuser").Return(false, nil)
		f.accounts.On("ExistsByEmail", ctx, "test@example.com").Return(false, nil)
		f.accounts.On("Create", ctx, mock.MatchedBy(func(a *auth.Account) bool {
			return a.Username == "testuser" && a.Email == "test@example.com" &&
				a.PasswordHash != "Secur3!ab" && f.policy.Verify("Secur3!ab", a.PasswordHash)
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*auth.Account).ID = 1
		}).Return(nil)
		f.tokens.On("Issue", int64(1), "testuser").Return("tok-1", nil)

		res := f.svc.Register(ctx, valid, testAddr, testAgent)

		assert.Equal(t, auth.AuthResult{
			Message:  "User registered successfully",
			Success:  true,
			UserID:   1,
			Username: "testuser",
			Email:    "test@example.com",
			Token:    "tok-1",
		}, res)
		assert.Equal(t, []auth.AuditEventType{auth.EventUserRegistration, auth.EventTokenIssued}, f.sink.types())
	})

	validation := []struct {
		name      string
		req       auth.RegisterRequest
		message   string
		eventType auth.AuditEventType
	}{
		{"blank username", auth.RegisterRequest{Username: "  ", Email: "a@b.com", Password: "Secur3!ab"}, "Username cannot be empty", auth.EventSecurityViolation},
		{"blank email", auth.RegisterRequest{Username: "testuser", Email: "", Password: "Secur3!ab"}, "Email cannot be empty", auth.EventSecurityViolation},
		{"blank password", auth.RegisterRequest{Username: "testuser", Email: "a@b.com", Password: " "}, "Password cannot be empty", auth.EventSecurityViolation},
		{"short username", auth.RegisterRequest{Username: "ab", Email: "a@b.com", Password: "Secur3!ab"}, "Username must be between 3 and 20 characters", auth.EventSecurityViolation},
		{"long username", auth.RegisterRequest{Username: "abcdefghijklmnopqrstu", Email: "a@b.com", Password: "Secur3!ab"}, "Username must be between 3 and 20 characters", auth.EventSecurityViolation},
		{"malformed email", auth.RegisterRequest{Username: "testuser", Email: "nope", Password: "Secur3!ab"}, "Invalid email format", auth.EventSecurityViolation},
		{"weak password", auth.RegisterRequest{Username: "testuser", Email: "a@b.com", Password: "password123"}, auth.WeakPasswordMessage, auth.EventWeakPassword},
	}
	for _, tt := range validation {
		t.Run(tt.name+" is rejected before the store", func(t *testing.T) {
			f := newServiceFixture(t)

			res := f.svc.Register(ctx, tt.req, testAddr, testAgent)

			assert.Equal(t, auth.Failure(tt.message), res)
			assert.Equal(t, []auth.AuditEventType{tt.eventType}, f.sink.types())
		})
	}

	t.Run("existing username", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("ExistsByUsername", ctx, "testuser").Return(true, nil)

		res := f.svc.Register(ctx, valid, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Username already exists"), res)
		f.accounts.AssertNotCalled(t, "ExistsByEmail", mock.Anything, mock.Anything)
		assert.Equal(t, []auth.AuditEventType{auth.EventSuspiciousActivity}, f.sink.types())
	})

	t.Run("existing email", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("ExistsByUsername", ctx, "testuser").Return(false, nil)
		f.accounts.On("ExistsByEmail", ctx, "test@example.com").Return(true, nil)

		res := f.svc.Register(ctx, valid, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Email already exists"), res)
		f.accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	lateDuplicates := []struct {
		name    string
		err     error
		message string
	}{
		{"username", auth.ErrDuplicateUsername, "Username already exists"},
		{"email", auth.ErrDuplicateEmail, "Email already exists"},
	}
	for _, tt := range lateDuplicates {
		t.Run("concurrent duplicate "+tt.name+" reported by store", func(t *testing.T) {
			f := newServiceFixture(t)
			f.accounts.On("ExistsByUsername", ctx, "testuser").Return(false, nil)
			f.accounts.On("ExistsByEmail", ctx, "test@example.com").Return(false, nil)
			f.accounts.On("Create", ctx, mock.Anything).Return(errors.Join(errors.New("constraint"), tt.err))

			res := f.svc.Register(ctx, valid, testAddr, testAgent)

			assert.Equal(t, auth.Failure(tt.message), res)
		})
	}

	t.Run("store failure becomes server error result", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("ExistsByUsername", ctx, "testuser").Return(false, nil)
		f.accounts.On("ExistsByEmail", ctx, "test@example.com").Return(false, nil)
		f.accounts.On("Create", ctx, mock.Anything).Return(errors.New("Database connection failed"))

		res := f.svc.Register(ctx, valid, testAddr, testAgent)

		assert.False(t, res.Success)
		assert.Equal(t, "Registration failed due to server error: Database connection failed", res.Message)
		ev := f.sink.last()
		assert.Equal(t, auth.EventSecurityViolation, ev.Type)
		assert.Equal(t, "Database connection failed", ev.Detail)
	})

	t.Run("token failure becomes server error result", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("ExistsByUsername", ctx, "testuser").Return(false, nil)
		f.accounts.On("ExistsByEmail", ctx, "test@example.com").Return(false, nil)
		f.accounts.On("Create", ctx, mock.Anything).Return(nil)
		f.tokens.On("Issue", mock.Anything, "testuser").Return("", errors.New("signer offline"))

		res := f.svc.Register(ctx, valid, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Registration failed due to server error: signer offline"), res)
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login by username clears failures", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.storedAccount(t, "Secur3!ab")
		f.tracker.RecordFailure(testAddr)
		f.accounts.On("GetByUsername", ctx, "testuser").Return(account, nil)
		f.tokens.On("Issue", int64(1), "testuser").Return("tok-login", nil)

		res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "Secur3!ab"}, testAddr, testAgent)

		assert.Equal(t, auth.AuthResult{
			Message:  "Login successful",
			Success:  true,
			UserID:   1,
			Username: "testuser",
			Email:    "test@example.com",
			Token:    "tok-login",
		}, res)
		assert.Equal(t, 0, f.tracker.FailedAttemptCount(testAddr))
		assert.Equal(t, []auth.AuditEventType{auth.EventSuccessfulLogin, auth.EventTokenIssued}, f.sink.types())
	})

	t.Run("falls back to email lookup", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.storedAccount(t, "Secur3!ab")
		f.accounts.On("GetByUsername", ctx, "test@example.com").Return(nil, auth.ErrNotFound)
		f.accounts.On("GetByEmail", ctx, "test@example.com").Return(account, nil)
		f.tokens.On("Issue", int64(1), "testuser").Return("tok", nil)

		res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "test@example.com", Password: "Secur3!ab"}, testAddr, testAgent)

		assert.True(t, res.Success)
		assert.Equal(t, "testuser", res.Username)
	})

	t.Run("unknown identifier records failure with generic message", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("GetByUsername", ctx, "ghost").Return(nil, auth.ErrNotFound)
		f.accounts.On("GetByEmail", ctx, "ghost").Return(nil, auth.ErrNotFound)

		res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "ghost", Password: "Secur3!ab"}, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Invalid credentials"), res)
		assert.Equal(t, 1, f.tracker.FailedAttemptCount(testAddr))
		ev := f.sink.last()
		assert.Equal(t, auth.EventFailedLogin, ev.Type)
		assert.Equal(t, "User not found", ev.Reason)
		assert.Equal(t, 1, ev.Attempts)
	})

	t.Run("wrong password gives the same message as unknown identifier", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.storedAccount(t, "Secur3!ab")
		f.accounts.On("GetByUsername", ctx, "testuser").Return(account, nil)

		res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "Wrong1!xx"}, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Invalid credentials"), res)
		assert.Equal(t, "Invalid password", f.sink.last().Reason)
	})

	t.Run("corrupt stored hash is an invalid password", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, nil))
		f := newServiceFixture(t, auth.WithLogger(logger))
		account := &auth.Account{
			ID: 1, Username: "testuser", Email: "test@example.com",
			PasswordHash: "$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$a2V5",
		}
		f.accounts.On("GetByUsername", ctx, "testuser").Return(account, nil)

		var res auth.AuthResult
		require.NotPanics(t, func() {
			res = f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "Secur3!ab"}, testAddr, testAgent)
		})

		assert.Equal(t, auth.Failure("Invalid credentials"), res)
		assert.Equal(t, "Invalid password", f.sink.last().Reason)
		assert.Equal(t, 1, f.tracker.FailedAttemptCount(testAddr))
		assert.Contains(t, logs.String(), "stored password hash is unusable")
		assert.Contains(t, logs.String(), "AUTH_INVALID_HASH")
	})

	t.Run("reaching the threshold raises a security alert", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.storedAccount(t, "Secur3!ab")
		f.accounts.On("GetByUsername", ctx, "testuser").Return(account, nil)
		for range auth.MaxFailedAttempts - 1 {
			f.tracker.RecordFailure(testAddr)
		}

		res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "nope"}, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Invalid credentials"), res)
		assert.Equal(t, []auth.AuditEventType{auth.EventFailedLogin, auth.EventSecurityAlert}, f.sink.types())
		assert.Equal(t, auth.MaxFailedAttempts, f.sink.last().Attempts)
		assert.True(t, f.tracker.IsLocked(testAddr))
	})

	t.Run("locked address never reaches the store", func(t *testing.T) {
		f := newServiceFixture(t)
		for range auth.MaxFailedAttempts {
			f.tracker.RecordFailure(testAddr)
		}

		res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "Secur3!ab"}, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Account temporarily locked. Try again in 30 minutes."), res)
		assert.Equal(t, auth.MaxFailedAttempts, f.tracker.FailedAttemptCount(testAddr))
		assert.Equal(t, []auth.AuditEventType{auth.EventSecurityViolation}, f.sink.types())
	})

	blanks := []struct {
		name    string
		req     auth.LoginRequest
		message string
	}{
		{"blank identifier", auth.LoginRequest{Identifier: " ", Password: "x"}, "Username cannot be empty"},
		{"blank password", auth.LoginRequest{Identifier: "testuser", Password: ""}, "Password cannot be empty"},
	}
	for _, tt := range blanks {
		t.Run(tt.name+" does not count as a failure", func(t *testing.T) {
			f := newServiceFixture(t)

			res := f.svc.Authenticate(ctx, tt.req, testAddr, testAgent)

			assert.Equal(t, auth.Failure(tt.message), res)
			assert.Equal(t, 0, f.tracker.FailedAttemptCount(testAddr))
			assert.Equal(t, []auth.AuditEventType{auth.EventFailedLogin}, f.sink.types())
		})
	}

	t.Run("store failure becomes server error result", func(t *testing.T) {
		f := newServiceFixture(t)
		f.accounts.On("GetByUsername", ctx, "testuser").Return(nil, errors.New("Database timeout"))

		res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "Secur3!ab"}, testAddr, testAgent)

		assert.Equal(t, auth.Failure("Authentication failed due to server error: Database timeout"), res)
		assert.Equal(t, 0, f.tracker.FailedAttemptCount(testAddr))
	})

	t.Run("exempt addresses bypass lockout", func(t *testing.T) {
		f := newServiceFixture(t, auth.WithLockoutExemptions("10.0.*", "::1"))
		account := f.storedAccount(t, "Secur3!ab")
		f.accounts.On("GetByUsername", ctx, "testuser").Return(account, nil)
		for range auth.MaxFailedAttempts {
			f.tracker.RecordFailure("10.0.0.5")
		}

		for range auth.MaxFailedAttempts + 2 {
			res := f.svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "bad"}, "10.0.0.5", testAgent)
			assert.Equal(t, auth.Failure("Invalid credentials"), res)
		}
		assert.Equal(t, auth.MaxFailedAttempts, f.tracker.FailedAttemptCount("10.0.0.5"))

		locked, err := f.svc.IsLocked(ctx, "10.0.0.5")
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestAuthService_TrackerFailures(t *testing.T) {
	ctx := context.Background()
	accounts := mocks.NewMockAccountRepository(t)
	tracker := mocks.NewMockAttemptTracker(t)
	sink := &recordingSink{}
	svc, err := auth.NewAuthService(accounts, newTestPolicy(t), tracker, mocks.NewMockTokenIssuer(t), sink)
	require.NoError(t, err)

	trackerErr := errors.New("redis unavailable")
	tracker.On("IsLocked", ctx, testAddr).Return(false, trackerErr)
	tracker.On("RemainingLockoutMinutes", ctx, testAddr).Return(0, trackerErr)
	tracker.On("FailedAttemptCount", ctx, testAddr).Return(0, trackerErr)

	res := svc.Authenticate(ctx, auth.LoginRequest{Identifier: "testuser", Password: "Secur3!ab"}, testAddr, testAgent)
	assert.Equal(t, auth.Failure("Authentication failed due to server error: redis unavailable"), res)

	_, err = svc.IsLocked(ctx, testAddr)
	errutil.AssertErrorCode(t, err, "AUTH_TRACKER_FAILED")
	_, err = svc.RemainingLockoutMinutes(ctx, testAddr)
	errutil.AssertErrorCode(t, err, "AUTH_TRACKER_FAILED")
	_, err = svc.FailedAttemptCount(ctx, testAddr)
	errutil.AssertErrorCode(t, err, "AUTH_TRACKER_FAILED")
}

func TestAuthService_Introspection(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	for range 3 {
		f.tracker.RecordFailure(testAddr)
	}

	n, err := f.svc.FailedAttemptCount(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	locked, err := f.svc.IsLocked(ctx, testAddr)
	require.NoError(t, err)
	assert.False(t, locked)

	minutes, err := f.svc.RemainingLockoutMinutes(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 0, minutes)
}
