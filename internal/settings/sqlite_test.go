package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, keep int) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "backup", "sbzdeck.db"), keep)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store has no record", func(t *testing.T) {
		store := openTestStore(t, 3)
		_, _, err := store.Latest(ctx)
		assert.ErrorIs(t, err, ErrNoRecord)
	})

	t.Run("latest returns the newest record", func(t *testing.T) {
		store := openTestStore(t, 3)
		saved := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return saved }

		require.NoError(t, store.Store(ctx, json.RawMessage(`{"n":1}`)))
		require.NoError(t, store.Store(ctx, json.RawMessage(`{"n":2}`)))

		payload, at, err := store.Latest(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(payload))
		assert.True(t, saved.Equal(at))
	})

	t.Run("old records are pruned", func(t *testing.T) {
		store := openTestStore(t, 3)
		for i := 0; i < 7; i++ {
			require.NoError(t, store.Store(ctx, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))))
		}

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		payload, _, err := store.Latest(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":6}`, string(payload))
	})

	t.Run("reopening keeps records", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sbzdeck.db")
		store, err := OpenSQLite(path, 0)
		require.NoError(t, err)
		require.NoError(t, store.Store(ctx, json.RawMessage(`{"kept":true}`)))
		require.NoError(t, store.Close())

		store, err = OpenSQLite(path, 0)
		require.NoError(t, err)
		defer store.Close()
		payload, _, err := store.Latest(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"kept":true}`, string(payload))
		assert.Equal(t, path, store.Path())
	})
}
