// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package observability exposes Prometheus metrics derived from audit events.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// DefaultJob is the pushgateway job name.
const DefaultJob = "keyward"

// AuthMetrics is an auth.AuditSink that counts audit events.
// It owns its registry to avoid polluting the global one.
type AuthMetrics struct {
	registry *prometheus.Registry

	EventsTotal   *prometheus.CounterVec
	LockoutsTotal prometheus.Counter
	LastAttempts  *prometheus.GaugeVec
}

// NewAuthMetrics creates and registers the authentication metrics together
// with the standard Go and process collectors.
func NewAuthMetrics() *AuthMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &AuthMetrics{
		registry: registry,
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyward_audit_events_total",
				Help: "Total number of audit events by type and reason",
			},
			[]string{"type", "reason"},
		),
		LockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyward_lockouts_total",
			Help: "Total number of times a source address reached the failed attempt limit",
		}),
		LastAttempts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyward_failed_attempts_last",
				Help: "Consecutive failure count carried by the most recent event of each type",
			},
			[]string{"type"},
		),
	}
	registry.MustRegister(m.EventsTotal, m.LockoutsTotal, m.LastAttempts)

	// Pre-create series so dashboards see zeros instead of gaps.
	for _, t := range auth.AuditEventTypes {
		m.EventsTotal.WithLabelValues(string(t), "")
	}
	return m
}

// Registry returns the registry holding the metrics.
func (m *AuthMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Record implements auth.AuditSink.
func (m *AuthMetrics) Record(_ context.Context, event auth.AuditEvent) {
	m.EventsTotal.WithLabelValues(string(event.Type), event.Reason).Inc()
	if event.Type == auth.EventSecurityAlert {
		m.LockoutsTotal.Inc()
	}
	if event.Attempts > 0 {
		m.LastAttempts.WithLabelValues(string(event.Type)).Set(float64(event.Attempts))
	}
}

// Handler serves the registry in the Prometheus exposition format, for
// embedding by a host process.
func (m *AuthMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Push sends the current values to a Prometheus pushgateway. Short-lived
// CLI invocations use this instead of being scraped.
func (m *AuthMetrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return oops.Code("METRICS_PUSH_FAILED").Errorf("pushgateway url is empty")
	}
	if job == "" {
		job = DefaultJob
	}
	if err := push.New(url, job).Gatherer(m.registry).AddContext(ctx); err != nil {
		return oops.Code("METRICS_PUSH_FAILED").With("url", url).With("job", job).Wrap(err)
	}
	return nil
}

var _ auth.AuditSink = (*AuthMetrics)(nil)
