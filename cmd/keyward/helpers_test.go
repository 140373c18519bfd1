// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/memory"
	"github.com/keyward/keyward/internal/broker"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// auditRecorder collects audit events.
type auditRecorder struct {
	mu     sync.Mutex
	events []auth.AuditEvent
	closed bool
}

func (r *auditRecorder) Record(_ context.Context, ev auth.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *auditRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *auditRecorder) types() []auth.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.AuditEventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// testEnv runs the CLI against an in-memory store.
type testEnv struct {
	repo      *memory.AccountRepository
	dbAudit   *auditRecorder
	broker    *auditRecorder
	brokerURL string
	storeOpen int
	storeShut int
	migrator  *mockMigrator
	deps      *Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KEYWARD_TOKEN_SECRET", testSecret)
	t.Setenv("KEYWARD_PASSWORD_BCRYPT_COST", "10")
	t.Setenv("KEYWARD_DATABASE_URL", "postgres://keyward@localhost/keyward")

	e := &testEnv{
		repo:     memory.NewAccountRepository(),
		dbAudit:  &auditRecorder{},
		broker:   &auditRecorder{},
		migrator: &mockMigrator{},
	}
	e.deps = &Deps{
		OpenStore: func(_ context.Context, cfg *config.Config, _ *slog.Logger) (*Store, error) {
			if err := requireDatabaseURL(cfg); err != nil {
				return nil, err
			}
			e.storeOpen++
			return &Store{
				Accounts: e.repo,
				Audit:    e.dbAudit,
				Close:    func() { e.storeShut++ },
			}, nil
		},
		NewMigrator: func(string) (Migrator, error) {
			return e.migrator, nil
		},
		NewRedisClient: func(config.RedisConfig) goredis.UniversalClient {
			t.Fatal("redis client requested")
			return nil
		},
		DialBroker: func(url, _ string, _ ...broker.Option) (AuditPublisher, error) {
			e.brokerURL = url
			return e.broker, nil
		},
	}
	return e
}

// run executes the CLI with args and stdin.
func (e *testEnv) run(stdin string, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmdWithDeps(e.deps)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func decodeResult(t *testing.T, stdout string) auth.AuthResult {
	t.Helper()
	var res auth.AuthResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res), "stdout: %s", stdout)
	return res
}

// mockMigrator implements Migrator for testing.
type mockMigrator struct {
	upCalled    bool
	downCalled  bool
	steps       []int
	forced      []int
	closeCalled bool
	status      store.Status
	err         error
}

func (m *mockMigrator) Up() error {
	m.upCalled = true
	return m.err
}

func (m *mockMigrator) Down() error {
	m.downCalled = true
	return m.err
}

func (m *mockMigrator) Steps(n int) error {
	m.steps = append(m.steps, n)
	return m.err
}

func (m *mockMigrator) Force(v int) error {
	m.forced = append(m.forced, v)
	return m.err
}

func (m *mockMigrator) Status() (store.Status, error) {
	return m.status, m.err
}

func (m *mockMigrator) Close() error {
	m.closeCalled = true
	return nil
}
