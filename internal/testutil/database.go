// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfare-dev/wayfare/internal/config"
	"github.com/wayfare-dev/wayfare/internal/storage"
)

// TestStore opens a migrated SQLite store in a per-test temp directory and
// registers cleanup.
func TestStore(t *testing.T) *storage.Store {
	t.Helper()
	return TestStoreWithOptions(t, config.Default())
}

// TestStoreWithOptions is TestStore with caller-controlled options; the
// database path is always overridden to the test temp directory.
func TestStoreWithOptions(t *testing.T, opts config.Options) *storage.Store {
	t.Helper()

	opts.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	ctx := context.Background()
	store, err := storage.Open(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	require.NoError(t, store.Migrate(ctx))
	return store
}
