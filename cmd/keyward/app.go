// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/keyward/keyward/internal/auth"
	authredis "github.com/keyward/keyward/internal/auth/redis"
	"github.com/keyward/keyward/internal/broker"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/observability"
	"github.com/keyward/keyward/pkg/errutil"
)

// app is a fully wired auth service plus the resources it holds.
type app struct {
	service *auth.Service
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newPasswordPolicy builds the policy for the configured algorithm. Both
// algorithms stay verifiable so stored hashes survive a switch.
func newPasswordPolicy(cfg config.PasswordConfig) (*auth.PasswordPolicy, error) {
	argon := auth.NewArgon2idHasher()
	if cfg.Algorithm == config.AlgorithmArgon2id {
		bc, err := auth.NewBcryptHasher(auth.DefaultBcryptCost)
		if err != nil {
			return nil, err
		}
		return auth.NewPasswordPolicy(argon, bc)
	}
	bc, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return auth.NewPasswordPolicy(bc, argon)
}

// newTracker builds the configured attempt tracker. The returned close
// function is never nil.
func (c *cli) newTracker(cfg *config.Config) (auth.AttemptTracker, func()) {
	if cfg.Lockout.Backend == config.BackendRedis {
		rdb := c.deps.NewRedisClient(cfg.Redis)
		tr := authredis.NewTracker(rdb,
			authredis.WithKeyPrefix(cfg.Redis.KeyPrefix),
			authredis.WithMaxAttempts(cfg.Lockout.MaxAttempts),
			authredis.WithLockoutDuration(cfg.Lockout.Duration),
		)
		return tr, func() { _ = rdb.Close() }
	}
	tr := auth.NewLockoutTracker(
		auth.WithMaxAttempts(cfg.Lockout.MaxAttempts),
		auth.WithLockoutDuration(cfg.Lockout.Duration),
	)
	return tr.Attempts(), func() {}
}

// newAudit builds the configured sinks. db may be nil when the postgres
// sink is not configured.
func (c *cli) newAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger, db auth.AuditSink, a *app) (auth.AuditSink, error) {
	var sinks auth.MultiSink
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, auth.NewLogSink(logger))
		case config.SinkPostgres:
			sinks = append(sinks, db)
		case config.SinkAMQP:
			pub, err := c.deps.DialBroker(cfg.Audit.AMQPURL, cfg.Audit.AMQPQueue,
				broker.WithLogger(logger),
				broker.WithPublishTimeout(cfg.Audit.Timeout),
			)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() { _ = pub.Close() })
			sinks = append(sinks, pub)
		case config.SinkMetrics:
			metrics := observability.NewAuthMetrics()
			if url := cfg.Metrics.PushgatewayURL; url != "" {
				job := cfg.Metrics.Job
				a.closers = append(a.closers, func() {
					if err := metrics.Push(context.WithoutCancel(ctx), url, job); err != nil {
						errutil.LogErrorContext(ctx, logger, "failed to push metrics", err)
					}
				})
			}
			sinks = append(sinks, metrics)
		}
	}
	if len(sinks) == 0 {
		return auth.NopSink{}, nil
	}
	return sinks, nil
}

// newApp wires the auth service from cfg. The caller must Close the app.
func (c *cli) newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Token.Validate(); err != nil {
		return nil, err
	}
	tokens, err := auth.NewJWTIssuer([]byte(cfg.Token.Secret),
		auth.WithTokenTTL(cfg.Token.TTL),
		auth.WithIssuer(cfg.Token.Issuer),
	)
	if err != nil {
		return nil, err
	}
	policy, err := newPasswordPolicy(cfg.Password)
	if err != nil {
		return nil, err
	}

	a := &app{}
	st, err := c.deps.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if st.Close != nil {
		a.closers = append(a.closers, st.Close)
	}

	tracker, closeTracker := c.newTracker(cfg)
	a.closers = append(a.closers, closeTracker)

	audit, err := c.newAudit(ctx, cfg, logger, st.Audit, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	svc, err := auth.NewAuthService(st.Accounts, policy, tracker, tokens, audit,
		auth.WithLogger(logger),
		auth.WithLockoutExemptions(cfg.Lockout.Exempt...),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = svc
	return a, nil
}
