package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/tree"
	"github.com/atticfs/attic/pkg/tree/treetest"
)

func newTestStore(t *testing.T, authz tree.Authorizer) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(context.Background(), BadgerStoreConfig{
		InMemory: true,
		Authz:    authz,
	})
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func TestBadgerStoreConformance(t *testing.T) {
	suite := &treetest.Suite{
		NewStore: func(t *testing.T, authz tree.Authorizer) tree.Store {
			return newTestStore(t, authz)
		},
	}
	suite.Run(t)
}

// allowAll authorizes everything, for tests that only exercise persistence.
type allowAll struct{}

func (allowAll) Authorize(tree.ID, tree.AccessMeta, tree.Access) bool { return true }

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := t.TempDir()

	store, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: dbPath, Authz: allowAll{}})
	require.NoError(t, err)

	root, err := store.CreateRoot(ctx, "alice", 1)
	require.NoError(t, err)
	docs, err := store.CreateDirectory(ctx, 1, root.ID, "docs")
	require.NoError(t, err)

	f, err := store.CreateFile(ctx, 1, docs.ID, "notes.txt")
	require.NoError(t, err)
	intent, err := store.PrepareWrite(ctx, 1, f.ID)
	require.NoError(t, err)
	_, _, err = store.CommitWrite(ctx, 1, intent, 128, "text/plain")
	require.NoError(t, err)

	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: dbPath, Authz: allowAll{}})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetDirectory(ctx, docs.ID)
	require.NoError(t, err)
	require.Equal(t, "docs", got.Name)
	require.Equal(t, root.ID, got.Parent)

	gotFile, err := reopened.GetFile(ctx, f.ID)
	require.NoError(t, err)
	require.True(t, gotFile.Complete)
	require.Equal(t, uint64(128), gotFile.Size)
	require.Equal(t, intent.ContentID, gotFile.ContentID)

	listing, err := reopened.ListChildren(ctx, 1, docs.ID)
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)

	roots, err := reopened.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Equal(t, root.ID, roots[0].ID)
	require.Equal(t, "alice", roots[0].Name)
}

func TestColonRejectedInNames(t *testing.T) {
	store := newTestStore(t, allowAll{})
	ctx := context.Background()

	root, err := store.CreateRoot(ctx, "alice", 1)
	require.NoError(t, err)

	_, err = store.CreateDirectory(ctx, 1, root.ID, "a:b")
	require.True(t, tree.IsCode(err, tree.ErrNameInvalid))
}
