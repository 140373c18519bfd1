// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails t unless err carries the oops code. Keyward
// components report failures by code (AUTH_INVALID_HASH, LOCKOUT_READ_FAILED,
// CONFIG_INVALID), and tests match on those rather than on message text.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oe, ok := oops.AsOops(err)
	require.True(t, ok, "want an oops error with code %q, got %T: %v", code, err, err)
	assert.Equal(t, code, oe.Code(), "oops code")
}

// AssertErrorContext fails t unless err carries key in its oops context with
// the given value, e.g. "field" on CONFIG_INVALID or "queue" on
// AUDIT_PUBLISH_FAILED.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oe, ok := oops.AsOops(err)
	require.True(t, ok, "want an oops error with context %q, got %T: %v", key, err, err)
	octx := oe.Context()
	if assert.Contains(t, octx, key) {
		assert.Equal(t, value, octx[key], "oops context %q", key)
	}
}
