// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"sync"
	"time"
)

// Lockout defaults.
const (
	// MaxFailedAttempts is the failure count at which an address is locked.
	MaxFailedAttempts = 5

	// LockoutDuration is how long a lock lasts after the last failure.
	LockoutDuration = 30 * time.Minute
)

// AttemptTracker counts failed attempts per source address and decides
// whether an address is locked out.
type AttemptTracker interface {
	// RecordFailure increments the failure counter and returns the new count.
	RecordFailure(ctx context.Context, addr string) (int, error)

	// RecordSuccess clears all state for the address.
	RecordSuccess(ctx context.Context, addr string) error

	// IsLocked reports whether the address is currently locked out.
	// Expired records are purged as a side effect.
	IsLocked(ctx context.Context, addr string) (bool, error)

	// RemainingLockoutMinutes returns whole minutes until the lock expires,
	// or 0 when the address is not locked.
	RemainingLockoutMinutes(ctx context.Context, addr string) (int, error)

	// FailedAttemptCount returns the current failure count.
	FailedAttemptCount(ctx context.Context, addr string) (int, error)

	// MaxAttempts returns the lockout threshold.
	MaxAttempts() int
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
}

// LockoutTracker is an in-process failure counter keyed by source address.
// Records expire lazily: they are purged when a read observes that the
// lockout window has elapsed.
type LockoutTracker struct {
	mu          sync.Mutex
	records     map[string]*attemptRecord
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

// LockoutOption configures a LockoutTracker.
type LockoutOption func(*LockoutTracker)

// WithMaxAttempts overrides MaxFailedAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) LockoutOption {
	return func(t *LockoutTracker) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithLockoutDuration overrides LockoutDuration. Non-positive values are ignored.
func WithLockoutDuration(d time.Duration) LockoutOption {
	return func(t *LockoutTracker) {
		if d > 0 {
			t.duration = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) LockoutOption {
	return func(t *LockoutTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewLockoutTracker creates an empty tracker.
func NewLockoutTracker(opts ...LockoutOption) *LockoutTracker {
	t := &LockoutTracker{
		records:     make(map[string]*attemptRecord),
		maxAttempts: MaxFailedAttempts,
		duration:    LockoutDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaxAttempts returns the lockout threshold.
func (t *LockoutTracker) MaxAttempts() int {
	return t.maxAttempts
}

// Duration returns the lockout window.
func (t *LockoutTracker) Duration() time.Duration {
	return t.duration
}

// RecordFailure increments the failure counter for addr, stamps the current
// time as its last failure and returns the new count. A record whose window
// has elapsed starts over at one.
func (t *LockoutTracker) RecordFailure(addr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[addr]
	if !ok || t.expired(rec) {
		rec = &attemptRecord{}
		t.records[addr] = rec
	}
	rec.failures++
	rec.lastFailure = t.now()
	return rec.failures
}

// RecordSuccess removes the record for addr.
func (t *LockoutTracker) RecordSuccess(addr string) {
	t.mu.Lock()
	delete(t.records, addr)
	t.mu.Unlock()
}

// IsLocked reports whether addr has at least MaxAttempts failures and the
// lockout window since its last failure has not elapsed. A record whose
// window has elapsed is removed.
func (t *LockoutTracker) IsLocked(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[addr]
	if !ok {
		return false
	}
	if t.expired(rec) {
		delete(t.records, addr)
		return false
	}
	return rec.failures >= t.maxAttempts
}

// RemainingLockoutMinutes returns the minutes left on the lock for addr,
// rounded to the nearest minute and never less than 1 while locked.
// It returns 0 when addr is not locked.
func (t *LockoutTracker) RemainingLockoutMinutes(addr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[addr]
	if !ok || rec.failures < t.maxAttempts {
		return 0
	}
	remaining := rec.lastFailure.Add(t.duration).Sub(t.now())
	if remaining <= 0 {
		return 0
	}
	minutes := int((remaining + time.Minute/2) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// FailedAttemptCount returns the failure count for addr, or 0 without a record.
func (t *LockoutTracker) FailedAttemptCount(addr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[addr]; ok {
		return rec.failures
	}
	return 0
}

// Reset drops all records.
func (t *LockoutTracker) Reset() {
	t.mu.Lock()
	clear(t.records)
	t.mu.Unlock()
}

// Attempts adapts t to the AttemptTracker interface.
func (t *LockoutTracker) Attempts() AttemptTracker {
	return localAttempts{t}
}

func (t *LockoutTracker) expired(rec *attemptRecord) bool {
	return !t.now().Before(rec.lastFailure.Add(t.duration))
}

// localAttempts never returns errors.
type localAttempts struct {
	t *LockoutTracker
}

func (a localAttempts) RecordFailure(_ context.Context, addr string) (int, error) {
	return a.t.RecordFailure(addr), nil
}

func (a localAttempts) RecordSuccess(_ context.Context, addr string) error {
	a.t.RecordSuccess(addr)
	return nil
}

func (a localAttempts) IsLocked(_ context.Context, addr string) (bool, error) {
	return a.t.IsLocked(addr), nil
}

func (a localAttempts) RemainingLockoutMinutes(_ context.Context, addr string) (int, error) {
	return a.t.RemainingLockoutMinutes(addr), nil
}

func (a localAttempts) FailedAttemptCount(_ context.Context, addr string) (int, error) {
	return a.t.FailedAttemptCount(addr), nil
}

func (a localAttempts) MaxAttempts() int {
	return a.t.MaxAttempts()
}
