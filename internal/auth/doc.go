// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package auth implements the Keyward authentication and lockout engine.
//
// # Components
//
//   - PasswordPolicy - strength rule plus salted hashing and verification
//   - LockoutTracker - in-memory per-address failure counters with lazy expiry
//   - JWTIssuer - opaque session tokens bound to an account
//   - AuditSink - fire-and-forget security event recording
//   - Service - registration and login use cases
//
// Every Service entry point returns an AuthResult. Validation failures,
// conflicts and authentication failures are ordinary results; infrastructure
// errors are caught at the Service boundary and downgraded to a generic
// failure message.
//
// Storage is reached only through AccountRepository. Implementations live in
// the postgres and memory subpackages.
package auth
