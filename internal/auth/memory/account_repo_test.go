// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/memory"
)

func newAccount(t *testing.T, username, email string) *auth.Account {
	t.Helper()
	a, err := auth.NewAccount(username, email, "$2a$04$hash")
	require.NoError(t, err)
	return a
}

func TestAccountRepository_CreateAssignsIDs(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()

	first := newAccount(t, "alice123", "alice@x.com")
	second := newAccount(t, "bob456", "bob@x.com")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, 2, repo.Len())
}

func TestAccountRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()
	require.NoError(t, repo.Create(ctx, newAccount(t, "alice123", "alice@x.com")))

	t.Run("by username", func(t *testing.T) {
		got, err := repo.GetByUsername(ctx, "alice123")
		require.NoError(t, err)
		assert.Equal(t, "alice@x.com", got.Email)
	})

	t.Run("by email", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "alice@x.com")
		require.NoError(t, err)
		assert.Equal(t, "alice123", got.Username)
	})

	t.Run("lookups are case sensitive", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "ALICE123")
		require.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByEmail(ctx, "Alice@x.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := repo.ExistsByUsername(ctx, "alice123")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.ExistsByEmail(ctx, "nobody@x.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("returned account is a copy", func(t *testing.T) {
		got, err := repo.GetByUsername(ctx, "alice123")
		require.NoError(t, err)
		got.Email = "mutated@x.com"
		again, err := repo.GetByUsername(ctx, "alice123")
		require.NoError(t, err)
		assert.Equal(t, "alice@x.com", again.Email)
	})
}

func TestAccountRepository_Duplicates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()
	require.NoError(t, repo.Create(ctx, newAccount(t, "alice123", "alice@x.com")))

	err := repo.Create(ctx, newAccount(t, "alice123", "other@x.com"))
	require.ErrorIs(t, err, auth.ErrDuplicateUsername)

	err = repo.Create(ctx, newAccount(t, "other1", "alice@x.com"))
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestAccountRepository_ConcurrentDuplicateCreates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := auth.NewAccount("racer", fmt.Sprintf("racer%d@x.com", i), "$2a$04$hash")
			if err != nil {
				return
			}
			if repo.Create(ctx, a) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, repo.Len())
}
