// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package broker publishes audit events to RabbitMQ so that downstream
// consumers (SIEM forwarders, alerting) can react to them.
package broker
