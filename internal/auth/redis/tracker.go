// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package redis implements auth.AttemptTracker on Redis so that several
// processes share one view of failed attempts.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// DefaultKeyPrefix namespaces tracker keys.
const DefaultKeyPrefix = "keyward:lockout:"

const (
	fieldFailures = "failures"
	fieldLast     = "last"
)

// recordFailureScript restarts a record whose window has elapsed, then
// increments the counter, stamps the failure time and extends the key TTL to
// the lockout window in one atomic step.
var recordFailureScript = goredis.NewScript(`
local last = redis.call("HGET", KEYS[1], "last")
if last and tonumber(last) + tonumber(ARGV[2]) <= tonumber(ARGV[1]) then
	redis.call("DEL", KEYS[1])
end
local n = redis.call("HINCRBY", KEYS[1], "failures", 1)
redis.call("HSET", KEYS[1], "last", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return n
`)

// purgeExpiredScript deletes the record only if its window has still elapsed
// when the script runs, so a failure recorded after the caller's read survives.
var purgeExpiredScript = goredis.NewScript(`
local last = redis.call("HGET", KEYS[1], "last")
if last and tonumber(last) + tonumber(ARGV[2]) <= tonumber(ARGV[1]) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Tracker stores one hash per source address. The key TTL equals the
// lockout window, and reads delete records whose window has elapsed.
type Tracker struct {
	rdb         goredis.UniversalClient
	prefix      string
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(t *Tracker) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithMaxAttempts overrides auth.MaxFailedAttempts.
func WithMaxAttempts(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithLockoutDuration overrides auth.LockoutDuration.
func WithLockoutDuration(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.duration = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a Tracker backed by rdb.
func NewTracker(rdb goredis.UniversalClient, opts ...Option) *Tracker {
	t := &Tracker{
		rdb:         rdb,
		prefix:      DefaultKeyPrefix,
		maxAttempts: auth.MaxFailedAttempts,
		duration:    auth.LockoutDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewClient creates a go-redis client for addr.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (t *Tracker) key(addr string) string {
	return t.prefix + addr
}

// MaxAttempts implements auth.AttemptTracker.
func (t *Tracker) MaxAttempts() int {
	return t.maxAttempts
}

// RecordFailure implements auth.AttemptTracker.
func (t *Tracker) RecordFailure(ctx context.Context, addr string) (int, error) {
	n, err := recordFailureScript.Run(ctx, t.rdb,
		[]string{t.key(addr)},
		t.now().UnixMilli(),
		t.duration.Milliseconds(),
	).Int()
	if err != nil {
		return 0, oops.Code("LOCKOUT_RECORD_FAILED").With("source_address", addr).Wrap(err)
	}
	return n, nil
}

// RecordSuccess implements auth.AttemptTracker.
func (t *Tracker) RecordSuccess(ctx context.Context, addr string) error {
	if err := t.rdb.Del(ctx, t.key(addr)).Err(); err != nil {
		return oops.Code("LOCKOUT_CLEAR_FAILED").With("source_address", addr).Wrap(err)
	}
	return nil
}

// IsLocked implements auth.AttemptTracker.
func (t *Tracker) IsLocked(ctx context.Context, addr string) (bool, error) {
	rec, ok, err := t.load(ctx, addr)
	if err != nil || !ok {
		return false, err
	}
	if t.remaining(rec) <= 0 {
		if _, err := t.purgeExpired(ctx, addr); err != nil {
			return false, err
		}
		return false, nil
	}
	return rec.failures >= t.maxAttempts, nil
}

// purgeExpired reports whether it deleted the record for addr.
func (t *Tracker) purgeExpired(ctx context.Context, addr string) (bool, error) {
	n, err := purgeExpiredScript.Run(ctx, t.rdb,
		[]string{t.key(addr)},
		t.now().UnixMilli(),
		t.duration.Milliseconds(),
	).Int()
	if err != nil {
		return false, oops.Code("LOCKOUT_PURGE_FAILED").With("source_address", addr).Wrap(err)
	}
	return n == 1, nil
}

// RemainingLockoutMinutes implements auth.AttemptTracker, rounding the same
// way as auth.LockoutTracker.
func (t *Tracker) RemainingLockoutMinutes(ctx context.Context, addr string) (int, error) {
	rec, ok, err := t.load(ctx, addr)
	if err != nil || !ok || rec.failures < t.maxAttempts {
		return 0, err
	}
	left := t.remaining(rec)
	if left <= 0 {
		return 0, nil
	}
	return max(1, int((left+time.Minute/2)/time.Minute)), nil
}

// FailedAttemptCount implements auth.AttemptTracker.
func (t *Tracker) FailedAttemptCount(ctx context.Context, addr string) (int, error) {
	rec, ok, err := t.load(ctx, addr)
	if err != nil || !ok {
		return 0, err
	}
	return rec.failures, nil
}

type record struct {
	failures int
	last     time.Time
}

func (t *Tracker) remaining(rec record) time.Duration {
	return rec.last.Add(t.duration).Sub(t.now())
}

func (t *Tracker) load(ctx context.Context, addr string) (record, bool, error) {
	vals, err := t.rdb.HMGet(ctx, t.key(addr), fieldFailures, fieldLast).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return record{}, false, oops.Code("LOCKOUT_READ_FAILED").With("source_address", addr).Wrap(err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return record{}, false, nil
	}
	return parseRecord(vals[0], vals[1])
}

func parseRecord(failures, last any) (record, bool, error) {
	fs, ok1 := failures.(string)
	ls, ok2 := last.(string)
	if !ok1 || !ok2 {
		return record{}, false, oops.Code("LOCKOUT_CORRUPT_RECORD").Errorf("unexpected hash field types %T, %T", failures, last)
	}
	n, err := strconv.Atoi(fs)
	if err != nil {
		return record{}, false, oops.Code("LOCKOUT_CORRUPT_RECORD").With("field", fieldFailures).Wrap(err)
	}
	ms, err := strconv.ParseInt(ls, 10, 64)
	if err != nil {
		return record{}, false, oops.Code("LOCKOUT_CORRUPT_RECORD").With("field", fieldLast).Wrap(err)
	}
	return record{failures: n, last: time.UnixMilli(ms)}, true, nil
}

var _ auth.AttemptTracker = (*Tracker)(nil)
