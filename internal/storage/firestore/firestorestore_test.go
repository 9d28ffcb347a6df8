//go:build integration

package firestore_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	fsAdapter "github.com/tinywideclouds/go-keypool-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// newTestLogger creates a discard logger for tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupSuite initializes a Firestore emulator and a new Store for testing.
func setupSuite(t *testing.T, documentID string) (context.Context, *firestore.Client, keypool.Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	const projectID = "test-project-keypool"
	const collectionName = "key-pools"

	logger := newTestLogger()

	firestoreConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(context.Background(), projectID, firestoreConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	store := fsAdapter.NewFirestoreStore(fsClient, collectionName, documentID, logger)

	return ctx, fsClient, store
}

func TestFirestoreStore_Integration(t *testing.T) {
	ctx, fsClient, store := setupSuite(t, "default")

	t.Run("Success - missing document yields empty pool", func(t *testing.T) {
		pool, err := store.Load(ctx)

		require.NoError(t, err)
		assert.Empty(t, pool)
	})

	t.Run("Success - save then load preserves order and fields", func(t *testing.T) {
		used := time.Date(2026, 4, 5, 6, 7, 8, 0, time.UTC)
		pool := keypool.Pool{
			{Name: "z", Value: "v-z", Active: true, Current: true, LastUsed: &used},
			{Name: "a", Value: "v-a", Exhausted: true, LastMarkedExhausted: &used, Email: "a@example.com"},
			{Name: "m", Value: "v-m", Active: true},
		}

		require.NoError(t, store.Save(ctx, pool))
		loaded, err := store.Load(ctx)

		require.NoError(t, err)
		assert.Equal(t, pool, loaded)
	})

	t.Run("Success - unparseable document yields empty pool", func(t *testing.T) {
		_, err := fsClient.Collection("key-pools").Doc("broken").Set(ctx, map[string]any{"records": "not-a-list"})
		require.NoError(t, err)
		broken := fsAdapter.NewFirestoreStore(fsClient, "key-pools", "broken", newTestLogger())

		pool, err := broken.Load(ctx)

		require.NoError(t, err)
		assert.Empty(t, pool)
	})
}
