// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package config loads keyward configuration from defaults, an optional YAML
// file, KEYWARD_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"slices"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/logging"
)

// Lockout backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Password algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Audit sinks.
const (
	SinkLog      = "log"
	SinkPostgres = "postgres"
	SinkAMQP     = "amqp"
	SinkMetrics  = "metrics"
)

var knownSinks = []string{SinkLog, SinkPostgres, SinkAMQP, SinkMetrics}

// Config is the complete keyward configuration.
type Config struct {
	Log      LogConfig      `koanf:"log" json:"log,omitempty"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty"`
	Password PasswordConfig `koanf:"password" json:"password,omitempty"`
	Lockout  LockoutConfig  `koanf:"lockout" json:"lockout,omitempty"`
	Redis    RedisConfig    `koanf:"redis" json:"redis,omitempty"`
	Token    TokenConfig    `koanf:"token" json:"token,omitempty"`
	Audit    AuditConfig    `koanf:"audit" json:"audit,omitempty"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text,description=Log output format"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig locates the PostgreSQL database.
type DatabaseConfig struct {
	URL             string        `koanf:"url" json:"url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
	ConnectAttempts uint64        `koanf:"connect_attempts" json:"connect_attempts,omitempty" jsonschema:"minimum=1"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" jsonschema:"description=Go duration such as 10s"`
}

// PasswordConfig selects how new passwords are hashed.
type PasswordConfig struct {
	Algorithm  string `koanf:"algorithm" json:"algorithm,omitempty" jsonschema:"enum=bcrypt,enum=argon2id"`
	BcryptCost int    `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" jsonschema:"minimum=10,maximum=31"`
}

// LockoutConfig controls brute-force lockout.
type LockoutConfig struct {
	Backend     string        `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=memory,enum=redis"`
	MaxAttempts int           `koanf:"max_attempts" json:"max_attempts,omitempty" jsonschema:"minimum=1"`
	Duration    time.Duration `koanf:"duration" json:"duration,omitempty" jsonschema:"description=Go duration such as 30m"`
	Exempt      []string      `koanf:"exempt" json:"exempt,omitempty" jsonschema:"description=Glob patterns of source addresses never locked out"`
}

// RedisConfig locates the Redis server used by the redis lockout backend.
type RedisConfig struct {
	Addr      string `koanf:"addr" json:"addr,omitempty"`
	Password  string `koanf:"password" json:"password,omitempty"`
	DB        int    `koanf:"db" json:"db,omitempty" jsonschema:"minimum=0"`
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix,omitempty"`
}

// TokenConfig controls session token issuance.
type TokenConfig struct {
	Secret string        `koanf:"secret" json:"secret,omitempty" jsonschema:"minLength=32"`
	TTL    time.Duration `koanf:"ttl" json:"ttl,omitempty" jsonschema:"description=Go duration such as 1h"`
	Issuer string        `koanf:"issuer" json:"issuer,omitempty"`
}

// AuditConfig selects where audit events go.
type AuditConfig struct {
	Sinks     []string      `koanf:"sinks" json:"sinks,omitempty" jsonschema:"description=Any of log postgres amqp metrics"`
	AMQPURL   string        `koanf:"amqp_url" json:"amqp_url,omitempty"`
	AMQPQueue string        `koanf:"amqp_queue" json:"amqp_queue,omitempty"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout,omitempty"`
}

// MetricsConfig controls the metrics audit sink.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url" json:"pushgateway_url,omitempty"`
	Job            string `koanf:"job" json:"job,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{
			ConnectAttempts: 5,
			ConnectTimeout:  10 * time.Second,
		},
		Password: PasswordConfig{
			Algorithm:  AlgorithmBcrypt,
			BcryptCost: auth.DefaultBcryptCost,
		},
		Lockout: LockoutConfig{
			Backend:     BackendMemory,
			MaxAttempts: auth.MaxFailedAttempts,
			Duration:    auth.LockoutDuration,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "keyward:lockout:",
		},
		Token: TokenConfig{
			TTL:    auth.DefaultTokenTTL,
			Issuer: "keyward",
		},
		Audit: AuditConfig{
			Sinks:     []string{SinkLog},
			AMQPQueue: "keyward.audit",
			Timeout:   2 * time.Second,
		},
		Metrics: MetricsConfig{Job: "keyward"},
	}
}

func invalid(field string, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate checks every section except the token secret, which only
// commands that issue tokens need (see TokenConfig.Validate).
func (c *Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if c.Database.ConnectAttempts == 0 {
		return invalid("database.connect_attempts", "connect attempts must be at least 1")
	}
	if c.Database.ConnectTimeout <= 0 {
		return invalid("database.connect_timeout", "connect timeout must be positive")
	}
	if err := c.Password.Validate(); err != nil {
		return err
	}
	if err := c.Lockout.Validate(); err != nil {
		return err
	}
	if c.Lockout.Backend == BackendRedis && c.Redis.Addr == "" {
		return invalid("redis.addr", "redis address is required for the redis lockout backend")
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "token ttl must be positive")
	}
	return c.Audit.Validate()
}

// Validate checks the password section.
func (p PasswordConfig) Validate() error {
	switch p.Algorithm {
	case AlgorithmBcrypt:
		if p.BcryptCost < auth.MinBcryptCost || p.BcryptCost > bcrypt.MaxCost {
			return invalid("password.bcrypt_cost", "bcrypt cost must be between %d and %d, got %d",
				auth.MinBcryptCost, bcrypt.MaxCost, p.BcryptCost)
		}
	case AlgorithmArgon2id:
	default:
		return invalid("password.algorithm", "unknown password algorithm %q", p.Algorithm)
	}
	return nil
}

// Validate checks the lockout section. Exemption patterns must compile.
func (l LockoutConfig) Validate() error {
	if l.Backend != BackendMemory && l.Backend != BackendRedis {
		return invalid("lockout.backend", "lockout backend must be %q or %q, got %q", BackendMemory, BackendRedis, l.Backend)
	}
	if l.MaxAttempts < 1 {
		return invalid("lockout.max_attempts", "max attempts must be at least 1")
	}
	if l.Duration <= 0 {
		return invalid("lockout.duration", "lockout duration must be positive")
	}
	for _, p := range l.Exempt {
		if _, err := glob.Compile(p); err != nil {
			return oops.Code("CONFIG_INVALID").With("field", "lockout.exempt").With("pattern", p).Wrap(err)
		}
	}
	return nil
}

// Validate checks the token section including the signing secret.
func (t TokenConfig) Validate() error {
	if len(t.Secret) < auth.MinTokenSecretLength {
		return invalid("token.secret", "token secret must be at least %d bytes", auth.MinTokenSecretLength)
	}
	if t.TTL <= 0 {
		return invalid("token.ttl", "token ttl must be positive")
	}
	return nil
}

// Validate checks the audit section.
func (a AuditConfig) Validate() error {
	for _, s := range a.Sinks {
		if !slices.Contains(knownSinks, s) {
			return invalid("audit.sinks", "unknown audit sink %q", s)
		}
	}
	if a.HasSink(SinkAMQP) && a.AMQPURL == "" {
		return invalid("audit.amqp_url", "amqp url is required for the amqp audit sink")
	}
	if a.Timeout <= 0 {
		return invalid("audit.timeout", "audit timeout must be positive")
	}
	return nil
}

// HasSink reports whether name is among the configured sinks.
func (a AuditConfig) HasSink(name string) bool {
	return slices.Contains(a.Sinks, name)
}
