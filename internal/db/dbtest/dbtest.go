// Package dbtest opens migrated throwaway stores for tests in other
// packages.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/db"
)

// NewStore returns a migrated store in t.TempDir, closed on cleanup.
func NewStore(t testing.TB) *db.Store {
	t.Helper()

	ctx := context.Background()
	store, err := db.NewStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedAccount inserts a bare account row so foreign keys resolve.
func SeedAccount(t testing.TB, store *db.Store, id string) {
	t.Helper()
	require.NoError(t, store.UpsertAccount(context.Background(), db.UpsertAccountParams{ID: id, DisplayName: id}))
}
