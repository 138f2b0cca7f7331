package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tafuta/tafuta/internal/storage"
)

func TestBlobStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "cache/profiles.json", []byte(`{"version":1}`)))

	data, err := store.Get(ctx, "cache/profiles.json")
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1}`, string(data))

	require.NoError(t, store.Delete(ctx, "cache/profiles.json"))
	_, err = store.Get(ctx, "cache/profiles.json")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlobStore_MissingBlob(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope.json")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting something that was never written is fine.
	require.NoError(t, store.Delete(context.Background(), "nope.json"))
}

func TestBlobStore_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside.json", []byte("x"))
	require.Error(t, err)
	require.False(t, errors.Is(err, storage.ErrNotFound))
}

func TestBlobStore_PutLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "blob.json", []byte("data")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "blob.json", filepath.Base(entries[0].Name()))
}
