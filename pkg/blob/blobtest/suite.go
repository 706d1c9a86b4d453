// Package blobtest provides a reusable conformance suite for blob.Store
// implementations.
package blobtest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// Run executes the conformance tests against the store built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) blob.Store) {
	t.Run("PutOpenRoundtrip", func(t *testing.T) { testRoundtrip(t, newStore(t)) })
	t.Run("Size", func(t *testing.T) { testSize(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListAndStats", func(t *testing.T) { testListAndStats(t, newStore(t)) })
	t.Run("Healthcheck", func(t *testing.T) { testHealthcheck(t, newStore(t)) })
}

func testRoundtrip(t *testing.T, store blob.Store) {
	ctx := context.Background()
	content := "the quick brown fox"

	n, err := store.Put(ctx, "blob-1", strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, uint64(len(content)), n)

	rc, err := store.Open(ctx, "blob-1")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, string(got))

	_, err = store.Open(ctx, "missing")
	require.ErrorIs(t, err, blob.ErrContentNotFound)

	// Empty blobs are valid.
	n, err = store.Put(ctx, "blob-empty", bytes.NewReader(nil))
	require.NoError(t, err)
	require.Zero(t, n)

	rc, err = store.Open(ctx, "blob-empty")
	require.NoError(t, err)
	defer rc.Close()
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.Empty(t, got)
}

func testSize(t *testing.T, store blob.Store) {
	ctx := context.Background()

	_, err := store.Put(ctx, "blob-1", strings.NewReader("12345"))
	require.NoError(t, err)

	size, err := store.Size(ctx, "blob-1")
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)

	_, err = store.Size(ctx, "missing")
	require.ErrorIs(t, err, blob.ErrContentNotFound)
}

func testDelete(t *testing.T, store blob.Store) {
	ctx := context.Background()

	_, err := store.Put(ctx, "blob-1", strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "blob-1"))
	_, err = store.Open(ctx, "blob-1")
	require.ErrorIs(t, err, blob.ErrContentNotFound)

	// Deleting an unknown id succeeds so the collector can retry freely.
	require.NoError(t, store.Delete(ctx, "blob-1"))
	require.NoError(t, store.Delete(ctx, "never-existed"))
}

func testListAndStats(t *testing.T, store blob.Store) {
	ctx := context.Background()

	ids, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = store.Put(ctx, "blob-1", strings.NewReader("aaa"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "blob-2", strings.NewReader("bbbbb"))
	require.NoError(t, err)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []tree.ContentID{"blob-1", "blob-2"}, ids)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.Count)
	require.Equal(t, uint64(8), stats.TotalSize)
}

func testHealthcheck(t *testing.T, store blob.Store) {
	require.NoError(t, store.Healthcheck(context.Background()))
}
