package treetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/tree"
)

func (s *Suite) runFileTests(t *testing.T) {
	t.Run("CreatePending", s.testCreatePending)
	t.Run("UploadLifecycle", s.testUploadLifecycle)
	t.Run("Reupload", s.testReupload)
	t.Run("ReadPermissions", s.testReadPermissions)
	t.Run("WritePermissions", s.testWritePermissions)
	t.Run("Rename", s.testRenameFile)
	t.Run("Remove", s.testRemoveFile)
}

func (s *Suite) testCreatePending(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	f, err := store.CreateFile(ctx, Alice, root.ID, "notes.txt")
	require.NoError(t, err)
	require.False(t, f.Complete)
	require.Empty(t, f.ContentID)

	for _, name := range []string{"", ".", "..", "a/b"} {
		_, err := store.CreateFile(ctx, Alice, root.ID, name)
		AssertCode(t, tree.ErrNameInvalid, err)
	}

	_, err = store.CreateFile(ctx, Alice, root.ID, "notes.txt")
	AssertCode(t, tree.ErrNameConflict, err)

	_, err = store.CreateFile(ctx, Alice, tree.ID(0xdead), "orphan.txt")
	AssertCode(t, tree.ErrNotFound, err)
}

func (s *Suite) testUploadLifecycle(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	f, err := store.CreateFile(ctx, Alice, root.ID, "notes.txt")
	require.NoError(t, err)

	// Reading a pending file fails with a distinct code.
	_, err = store.PrepareRead(ctx, Alice, f.ID)
	AssertCode(t, tree.ErrContentNotReady, err)

	intent, err := store.PrepareWrite(ctx, Alice, f.ID)
	require.NoError(t, err)
	require.Equal(t, f.ID, intent.FileID)
	require.NotEmpty(t, intent.ContentID)

	// PrepareWrite changes no metadata; the file is still pending.
	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	require.False(t, got.Complete)

	committed, replaced, err := store.CommitWrite(ctx, Alice, intent, 1024, "text/plain")
	require.NoError(t, err)
	require.Empty(t, replaced)
	require.True(t, committed.Complete)
	require.Equal(t, uint64(1024), committed.Size)
	require.Equal(t, "text/plain", committed.ContentType)
	require.Equal(t, intent.ContentID, committed.ContentID)

	readable, err := store.PrepareRead(ctx, Alice, f.ID)
	require.NoError(t, err)
	require.Equal(t, intent.ContentID, readable.ContentID)
}

func (s *Suite) testReupload(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	f := createCompleteFile(t, store, Alice, root.ID, "notes.txt", 10)
	first := f.ContentID

	intent, err := store.PrepareWrite(ctx, Alice, f.ID)
	require.NoError(t, err)
	require.NotEqual(t, first, intent.ContentID)

	updated, replaced, err := store.CommitWrite(ctx, Alice, intent, 20, "text/plain")
	require.NoError(t, err)
	require.Equal(t, first, replaced)
	require.Equal(t, intent.ContentID, updated.ContentID)
	require.Equal(t, uint64(20), updated.Size)
}

func (s *Suite) testReadPermissions(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	f := createCompleteFile(t, store, Alice, root.ID, "notes.txt", 10)

	_, err := store.PrepareRead(ctx, Dave, f.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)
	_, err = store.PrepareRead(ctx, Bob, f.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)

	// Files inherit the parent directory's grants.
	_, err = store.SetDirectoryGrants(ctx, Alice, root.ID, []tree.ID{Readers}, nil)
	require.NoError(t, err)

	_, err = store.PrepareRead(ctx, Bob, f.ID)
	require.NoError(t, err)
	_, err = store.PrepareRead(ctx, Dave, f.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)
}

func (s *Suite) testWritePermissions(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	f := createCompleteFile(t, store, Alice, root.ID, "notes.txt", 10)

	_, err := store.PrepareWrite(ctx, Carol, f.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)

	_, err = store.SetDirectoryGrants(ctx, Alice, root.ID, nil, []tree.ID{Writers})
	require.NoError(t, err)

	intent, err := store.PrepareWrite(ctx, Carol, f.ID)
	require.NoError(t, err)
	_, _, err = store.CommitWrite(ctx, Carol, intent, 5, "text/plain")
	require.NoError(t, err)

	// A write grant does not imply read.
	_, err = store.PrepareRead(ctx, Carol, f.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)
}

func (s *Suite) testRenameFile(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	f := createCompleteFile(t, store, Alice, root.ID, "old.txt", 10)

	renamed, err := store.RenameFile(ctx, Alice, f.ID, "new.txt")
	require.NoError(t, err)
	require.Equal(t, "new.txt", renamed.Name)
	require.Equal(t, f.ContentID, renamed.ContentID)

	createCompleteFile(t, store, Alice, root.ID, "taken.txt", 1)
	_, err = store.RenameFile(ctx, Alice, f.ID, "taken.txt")
	AssertCode(t, tree.ErrNameConflict, err)

	_, err = store.RenameFile(ctx, Dave, f.ID, "stolen.txt")
	AssertCode(t, tree.ErrPermissionDenied, err)
}

func (s *Suite) testRemoveFile(t *testing.T) {
	store := s.store(t)
	ctx := context.Background()
	root := createRoot(t, store)

	complete := createCompleteFile(t, store, Alice, root.ID, "done.txt", 10)
	pending, err := store.CreateFile(ctx, Alice, root.ID, "pending.txt")
	require.NoError(t, err)

	_, err = store.RemoveFile(ctx, Dave, complete.ID)
	AssertCode(t, tree.ErrPermissionDenied, err)

	released, err := store.RemoveFile(ctx, Alice, complete.ID)
	require.NoError(t, err)
	require.Equal(t, complete.ContentID, released)

	released, err = store.RemoveFile(ctx, Alice, pending.ID)
	require.NoError(t, err)
	require.Empty(t, released)

	_, err = store.GetFile(ctx, complete.ID)
	AssertCode(t, tree.ErrNotFound, err)

	_, err = store.RemoveFile(ctx, Alice, complete.ID)
	AssertCode(t, tree.ErrNotFound, err)
}
