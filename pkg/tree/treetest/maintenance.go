package treetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/tree"
)

func (s *Suite) runMaintenanceTests(t *testing.T) {
	t.Run("AllContentIDs", s.testAllContentIDs)
	t.Run("RemoveStalePending", s.testRemoveStalePending)
	t.Run("Healthcheck", s.testHealthcheck)
}

func (s *Suite) testAllContentIDs(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	ids, err := store.AllContentIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	f1 := createCompleteFile(t, store, Alice, root.ID, "one.txt", 1)
	f2 := createCompleteFile(t, store, Alice, root.ID, "two.txt", 2)
	_, err = store.CreateFile(ctx, Alice, root.ID, "pending.txt")
	require.NoError(t, err)

	ids, err = store.AllContentIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []tree.ContentID{f1.ContentID, f2.ContentID}, ids)
}

func (s *Suite) testRemoveStalePending(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	complete := createCompleteFile(t, store, Alice, root.ID, "done.txt", 1)
	pending, err := store.CreateFile(ctx, Alice, root.ID, "stale.txt")
	require.NoError(t, err)

	// A cutoff before creation removes nothing.
	removed, err := store.RemoveStalePending(ctx, pending.CreatedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = store.RemoveStalePending(ctx, pending.CreatedAt.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.GetFile(ctx, pending.ID)
	AssertCode(t, tree.ErrNotFound, err)

	// Complete files are never touched by the sweep.
	_, err = store.GetFile(ctx, complete.ID)
	require.NoError(t, err)

	// The swept file's name is free again.
	_, err = store.CreateFile(ctx, Alice, root.ID, "stale.txt")
	require.NoError(t, err)
}

func (s *Suite) testHealthcheck(t *testing.T) {
	store := s.store(t)
	require.NoError(t, store.Healthcheck(context.Background()))
}
