// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/postgres"
	authredis "github.com/keyward/keyward/internal/auth/redis"
	"github.com/keyward/keyward/internal/broker"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/store"
)

// Migrator is the subset of store.Migrator used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// AuditPublisher is an audit sink holding a broker connection.
type AuditPublisher interface {
	auth.AuditSink
	Close() error
}

// Store is an open database: the account repository, an audit sink writing
// to the same database and a function releasing the connection.
type Store struct {
	Accounts auth.AccountRepository
	Audit    auth.AuditSink
	Close    func()
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// OpenStore connects to PostgreSQL.
	// Default: store.Connect with postgres repositories
	OpenStore func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error)

	// NewMigrator creates a schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// NewRedisClient creates the client for the redis lockout backend.
	// Default: authredis.NewClient
	NewRedisClient func(cfg config.RedisConfig) goredis.UniversalClient

	// DialBroker connects the AMQP audit sink.
	// Default: broker.Dial
	DialBroker func(url, queue string, opts ...broker.Option) (AuditPublisher, error)
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.OpenStore == nil {
		out.OpenStore = openPostgresStore
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(url string) (Migrator, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.NewRedisClient == nil {
		out.NewRedisClient = func(cfg config.RedisConfig) goredis.UniversalClient {
			return authredis.NewClient(cfg.Addr, cfg.Password, cfg.DB)
		}
	}
	if out.DialBroker == nil {
		out.DialBroker = func(url, queue string, opts ...broker.Option) (AuditPublisher, error) {
			p, err := broker.Dial(url, queue, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	return out
}

func requireDatabaseURL(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database.url").
			Errorf("database url is required (--database-url or KEYWARD_DATABASE_URL)")
	}
	return nil
}

func openPostgresStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := requireDatabaseURL(cfg); err != nil {
		return nil, err
	}

	opts := store.DefaultConnectOptions()
	opts.MaxRetries = cfg.Database.ConnectAttempts - 1
	opts.Logger = logger

	ctx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database.URL, opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		Accounts: postgres.NewAccountRepository(pool),
		Audit:    postgres.NewAuditSink(pool, logger, cfg.Audit.Timeout),
		Close:    pool.Close,
	}, nil
}
