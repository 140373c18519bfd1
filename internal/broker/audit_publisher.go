// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

// DefaultQueue is the queue audit events are published to when none is configured.
const DefaultQueue = "keyward.audit"

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AuditPublisher is an auth.AuditSink that publishes JSON events to a durable queue.
type AuditPublisher struct {
	conn    *amqp.Connection
	ch      channel
	queue   string
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// Option configures an AuditPublisher.
type Option func(*AuditPublisher)

// WithLogger sets the logger used for dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *AuditPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPublishTimeout bounds each publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *AuditPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func newPublisher(ch channel, queue string, opts ...Option) *AuditPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	p := &AuditPublisher{
		ch:      ch,
		queue:   queue,
		logger:  slog.Default(),
		timeout: 2 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to the broker at url and declares a durable queue.
func Dial(url, queue string, opts ...Option) (*AuditPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("AUDIT_BROKER_CONNECT_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("AUDIT_BROKER_CONNECT_FAILED").Wrapf(err, "open channel")
	}

	p := newPublisher(ch, queue, opts...)
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("AUDIT_BROKER_CONNECT_FAILED").With("queue", p.queue).Wrapf(err, "declare queue")
	}
	p.conn = conn
	return p, nil
}

// Queue returns the destination queue name.
func (p *AuditPublisher) Queue() string {
	return p.queue
}

// Record implements auth.AuditSink. Failures are logged and dropped.
func (p *AuditPublisher) Record(ctx context.Context, event auth.AuditEvent) {
	if err := p.Publish(ctx, event); err != nil {
		errutil.LogErrorContext(ctx, p.logger, "failed to publish audit event", err)
	}
}

// Publish sends event to the queue through the default exchange.
func (p *AuditPublisher) Publish(ctx context.Context, event auth.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return oops.Code("AUDIT_PUBLISH_FAILED").With("event_id", event.ID.String()).Wrap(err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Type:         string(event.Type),
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		return oops.Code("AUDIT_PUBLISH_FAILED").
			With("event_id", event.ID.String()).
			With("queue", p.queue).
			Wrap(err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AuditPublisher) Close() error {
	if p == nil {
		return nil
	}
	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ auth.AuditSink = (*AuditPublisher)(nil)
