// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package redis

import "context"

// PurgeExpired exposes the purge step of IsLocked to tests.
func (t *Tracker) PurgeExpired(ctx context.Context, addr string) (bool, error) {
	return t.purgeExpired(ctx, addr)
}
