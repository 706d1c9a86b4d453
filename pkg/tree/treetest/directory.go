package treetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/tree"
)

func (s *Suite) runDirectoryTests(t *testing.T) {
	t.Run("CreateAndGet", s.testCreateAndGet)
	t.Run("CreateValidation", s.testCreateValidation)
	t.Run("CreatePermissions", s.testCreatePermissions)
	t.Run("ListChildren", s.testListChildren)
	t.Run("Rename", s.testRenameDirectory)
	t.Run("Remove", s.testRemoveDirectory)
	t.Run("Grants", s.testGrants)
	t.Run("Path", s.testPath)
}

func (s *Suite) testCreateAndGet(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	require.True(t, root.IsRoot())
	require.Equal(t, Alice, root.Owner)

	docs, err := store.CreateDirectory(ctx, Alice, root.ID, "docs")
	require.NoError(t, err)
	require.Equal(t, root.ID, docs.Parent)
	require.Equal(t, Alice, docs.Owner)
	require.NotEqual(t, root.ID, docs.ID)

	got, err := store.GetDirectory(ctx, docs.ID)
	require.NoError(t, err)
	require.Equal(t, docs.ID, got.ID)
	require.Equal(t, "docs", got.Name)

	_, err = store.GetDirectory(ctx, tree.ID(0xdead))
	AssertCode(t, tree.ErrNotFound, err)
}

func (s *Suite) testCreateValidation(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	for _, name := range []string{"", ".", "..", "a/b", "a:b"} {
		_, err := store.CreateDirectory(ctx, Alice, root.ID, name)
		AssertCode(t, tree.ErrNameInvalid, err)
	}

	_, err := store.CreateDirectory(ctx, Alice, tree.ID(0xdead), "docs")
	AssertCode(t, tree.ErrNotFound, err)

	_, err = store.CreateDirectory(ctx, Alice, root.ID, "docs")
	require.NoError(t, err)
	_, err = store.CreateDirectory(ctx, Alice, root.ID, "docs")
	AssertCode(t, tree.ErrNameConflict, err)

	// Files and directories share one namespace per parent.
	_, err = store.CreateFile(ctx, Alice, root.ID, "notes.txt")
	require.NoError(t, err)
	_, err = store.CreateDirectory(ctx, Alice, root.ID, "notes.txt")
	AssertCode(t, tree.ErrNameConflict, err)
}

func (s *Suite) testCreatePermissions(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	_, err := store.CreateDirectory(ctx, Dave, root.ID, "intruder")
	AssertCode(t, tree.ErrPermissionDenied, err)

	// A write grant on the root lets writers-group members create children.
	_, err = store.SetDirectoryGrants(ctx, Alice, root.ID, nil, []tree.ID{Writers})
	require.NoError(t, err)

	shared, err := store.CreateDirectory(ctx, Carol, root.ID, "shared")
	require.NoError(t, err)
	require.Equal(t, Carol, shared.Owner)

	// Read grants do not imply write.
	_, err = store.SetDirectoryGrants(ctx, Alice, root.ID, []tree.ID{Readers}, nil)
	require.NoError(t, err)
	_, err = store.CreateDirectory(ctx, Bob, root.ID, "readers-dir")
	AssertCode(t, tree.ErrPermissionDenied, err)
}

func (s *Suite) testListChildren(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	_, err := store.CreateDirectory(ctx, Alice, root.ID, "b-dir")
	require.NoError(t, err)
	_, err = store.CreateDirectory(ctx, Alice, root.ID, "a-dir")
	require.NoError(t, err)
	createCompleteFile(t, store, Alice, root.ID, "c-file.txt", 42)
	pending, err := store.CreateFile(ctx, Alice, root.ID, "d-pending.txt")
	require.NoError(t, err)

	listing, err := store.ListChildren(ctx, Alice, root.ID)
	require.NoError(t, err)
	require.Len(t, listing.Directories, 2)
	require.Len(t, listing.Files, 2)

	// Sorted by name.
	require.Equal(t, "a-dir", listing.Directories[0].Name)
	require.Equal(t, "b-dir", listing.Directories[1].Name)
	require.Equal(t, "c-file.txt", listing.Files[0].Name)

	// The owner holds full access on everything here.
	for _, d := range listing.Directories {
		require.True(t, d.CanRead)
		require.True(t, d.CanWrite)
	}

	// A pending file's size is not known yet.
	require.False(t, listing.Files[1].SizeKnown())
	require.Equal(t, pending.ID, listing.Files[1].ID)
	require.True(t, listing.Files[0].SizeKnown())
	require.Equal(t, uint64(42), listing.Files[0].Size)

	// Listing requires read access on the directory itself.
	_, err = store.ListChildren(ctx, Dave, root.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)

	_, err = store.SetDirectoryGrants(ctx, Alice, root.ID, []tree.ID{Readers}, nil)
	require.NoError(t, err)
	listing, err = store.ListChildren(ctx, Bob, root.ID)
	require.NoError(t, err)

	// Bob can read files in a directory he can list, but not write them.
	require.True(t, listing.Files[0].CanRead)
	require.False(t, listing.Files[0].CanWrite)
}

func (s *Suite) testRenameDirectory(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	docs, err := store.CreateDirectory(ctx, Alice, root.ID, "docs")
	require.NoError(t, err)

	renamed, err := store.RenameDirectory(ctx, Alice, docs.ID, "papers")
	require.NoError(t, err)
	require.Equal(t, "papers", renamed.Name)

	// Same-name rename is a no-op, not a conflict.
	_, err = store.RenameDirectory(ctx, Alice, docs.ID, "papers")
	require.NoError(t, err)

	_, err = store.CreateDirectory(ctx, Alice, root.ID, "other")
	require.NoError(t, err)
	_, err = store.RenameDirectory(ctx, Alice, docs.ID, "other")
	AssertCode(t, tree.ErrNameConflict, err)

	_, err = store.RenameDirectory(ctx, Alice, root.ID, "new-root")
	AssertCode(t, tree.ErrPermissionDenied, err)

	_, err = store.RenameDirectory(ctx, Dave, docs.ID, "mine")
	AssertCode(t, tree.ErrPermissionDenied, err)
}

func (s *Suite) testRemoveDirectory(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	docs, err := store.CreateDirectory(ctx, Alice, root.ID, "docs")
	require.NoError(t, err)
	sub, err := store.CreateDirectory(ctx, Alice, docs.ID, "sub")
	require.NoError(t, err)

	f1 := createCompleteFile(t, store, Alice, docs.ID, "one.txt", 1)
	f2 := createCompleteFile(t, store, Alice, sub.ID, "two.txt", 2)
	_, err = store.CreateFile(ctx, Alice, sub.ID, "pending.txt")
	require.NoError(t, err)

	_, err = store.RemoveDirectory(ctx, Alice, root.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)

	_, err = store.RemoveDirectory(ctx, Dave, docs.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)

	released, err := store.RemoveDirectory(ctx, Alice, docs.ID)
	require.NoError(t, err)

	// Only complete files release content; the pending file has none.
	require.ElementsMatch(t, []tree.ContentID{f1.ContentID, f2.ContentID}, released)

	_, err = store.GetDirectory(ctx, docs.ID)
	AssertCode(t, tree.ErrNotFound, err)
	_, err = store.GetDirectory(ctx, sub.ID)
	AssertCode(t, tree.ErrNotFound, err)
	_, err = store.GetFile(ctx, f2.ID)
	AssertCode(t, tree.ErrNotFound, err)

	// The name is free again.
	_, err = store.CreateDirectory(ctx, Alice, root.ID, "docs")
	require.NoError(t, err)
}

func (s *Suite) testGrants(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	docs, err := store.CreateDirectory(ctx, Alice, root.ID, "docs")
	require.NoError(t, err)

	// Grant changes are owner-only, write access is not enough.
	_, err = store.SetDirectoryGrants(ctx, Alice, docs.ID, nil, []tree.ID{Writers})
	require.NoError(t, err)
	_, err = store.SetDirectoryGrants(ctx, Carol, docs.ID, []tree.ID{Writers}, nil)
	AssertCode(t, tree.ErrPermissionDenied, err)

	updated, err := store.SetDirectoryGrants(ctx, Alice, docs.ID, []tree.ID{Readers}, nil)
	require.NoError(t, err)
	require.True(t, updated.ReadGroups.Contains(Readers))

	// A nil side is left unchanged.
	require.True(t, updated.WriteGroups.Contains(Writers))

	// An empty, non-nil side clears the grants.
	updated, err = store.SetDirectoryGrants(ctx, Alice, docs.ID, nil, []tree.ID{})
	require.NoError(t, err)
	require.Empty(t, updated.WriteGroups)
	require.True(t, updated.ReadGroups.Contains(Readers))
}

func (s *Suite) testPath(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	docs, err := store.CreateDirectory(ctx, Alice, root.ID, "docs")
	require.NoError(t, err)
	sub, err := store.CreateDirectory(ctx, Alice, docs.ID, "sub")
	require.NoError(t, err)

	chain, err := store.Path(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, root.ID, chain[0].ID)
	require.Equal(t, docs.ID, chain[1].ID)
	require.Equal(t, sub.ID, chain[2].ID)

	chain, err = store.Path(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	_, err = store.Path(ctx, tree.ID(0xdead))
	AssertCode(t, tree.ErrNotFound, err)
}
