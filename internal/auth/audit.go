// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuditEventType classifies a security-relevant occurrence.
type AuditEventType string

// Audit event types.
const (
	EventSuccessfulLogin    AuditEventType = "SUCCESSFUL_LOGIN"
	EventFailedLogin        AuditEventType = "FAILED_LOGIN"
	EventUserRegistration   AuditEventType = "USER_REGISTRATION"
	EventSecurityAlert      AuditEventType = "SECURITY_ALERT"
	EventSecurityViolation  AuditEventType = "SECURITY_VIOLATION"
	EventSuspiciousActivity AuditEventType = "SUSPICIOUS_ACTIVITY"
	EventWeakPassword       AuditEventType = "WEAK_PASSWORD"
	EventTokenIssued        AuditEventType = "TOKEN_EVENT"
)

// AuditEventTypes lists every event type in a stable order.
var AuditEventTypes = []AuditEventType{
	EventSuccessfulLogin,
	EventFailedLogin,
	EventUserRegistration,
	EventSecurityAlert,
	EventSecurityViolation,
	EventSuspiciousActivity,
	EventWeakPassword,
	EventTokenIssued,
}

// Level returns the slog level an event of this type is logged at.
func (t AuditEventType) Level() slog.Level {
	switch t {
	case EventSecurityAlert, EventSecurityViolation:
		return slog.LevelError
	case EventFailedLogin, EventSuspiciousActivity, EventWeakPassword:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// AuditEvent is a single audit record. It never carries passwords or tokens.
type AuditEvent struct {
	ID            ulid.ULID      `json:"id"`
	Type          AuditEventType `json:"type"`
	Username      string         `json:"username,omitempty"`
	Email         string         `json:"email,omitempty"`
	SourceAddress string         `json:"source_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Detail        string         `json:"detail,omitempty"`
	Attempts      int            `json:"attempts,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// NewAuditEvent creates an event of the given type with a fresh ID and timestamp.
func NewAuditEvent(t AuditEventType, sourceAddress, userAgent string) AuditEvent {
	return AuditEvent{
		ID:            ulid.Make(),
		Type:          t,
		SourceAddress: sourceAddress,
		UserAgent:     userAgent,
		OccurredAt:    time.Now().UTC(),
	}
}

// LogValue implements slog.LogValuer.
func (e AuditEvent) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", e.ID.String()),
		slog.String("type", string(e.Type)),
	}
	add := func(k, v string) {
		if v != "" {
			attrs = append(attrs, slog.String(k, v))
		}
	}
	add("username", e.Username)
	add("email", e.Email)
	add("source_address", e.SourceAddress)
	add("user_agent", e.UserAgent)
	add("reason", e.Reason)
	add("detail", e.Detail)
	if e.Attempts > 0 {
		attrs = append(attrs, slog.Int("attempts", e.Attempts))
	}
	attrs = append(attrs, slog.Time("occurred_at", e.OccurredAt))
	return slog.GroupValue(attrs...)
}

// AuditSink receives audit events. Record must not block the caller on
// failure; implementations log and drop what they cannot deliver.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event AuditEvent)

// Record calls f.
func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) {
	f(ctx, event)
}

// NopSink discards every event.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(context.Context, AuditEvent) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs the event at the level implied by its type.
func (s *LogSink) Record(ctx context.Context, event AuditEvent) {
	s.logger.LogAttrs(ctx, event.Type.Level(), "audit event", slog.Any("audit", event))
}

// MultiSink fans each event out to every sink in order.
type MultiSink []AuditSink

// Record forwards event to every non-nil sink.
func (m MultiSink) Record(ctx context.Context, event AuditEvent) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, event)
		}
	}
}
