// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

// AuditSink persists audit events to the audit_events table.
type AuditSink struct {
	db      querier
	logger  *slog.Logger
	timeout time.Duration
}

// NewAuditSink creates an AuditSink. Inserts are bounded by timeout so a slow
// database cannot stall authentication. A nil logger uses slog.Default().
func NewAuditSink(db querier, logger *slog.Logger, timeout time.Duration) *AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AuditSink{db: db, logger: logger, timeout: timeout}
}

// Record implements auth.AuditSink. Failures are logged and dropped.
func (s *AuditSink) Record(ctx context.Context, event auth.AuditEvent) {
	if err := s.Insert(ctx, event); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to persist audit event", err)
	}
}

// Insert writes event and reports any failure.
func (s *AuditSink) Insert(ctx context.Context, event auth.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_events (
			id, event_type, username, email, source_address,
			user_agent, reason, detail, attempts, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		event.ID.String(),
		string(event.Type),
		event.Username,
		event.Email,
		event.SourceAddress,
		event.UserAgent,
		event.Reason,
		event.Detail,
		event.Attempts,
		event.OccurredAt,
	)
	if err != nil {
		return oops.Code("AUDIT_PERSIST_FAILED").
			With("event_id", event.ID.String()).
			With("event_type", string(event.Type)).
			Wrap(err)
	}
	return nil
}

var _ auth.AuditSink = (*AuditSink)(nil)
