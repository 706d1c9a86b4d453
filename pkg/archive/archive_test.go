package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/access"
	blobMemory "github.com/atticfs/attic/pkg/blob/memory"
	"github.com/atticfs/attic/pkg/tree"
	treeMemory "github.com/atticfs/attic/pkg/tree/memory"
)

const (
	alice = tree.ID(1)
	bob   = tree.ID(2)

	readers = tree.ID(100)
)

type staticMembership map[tree.ID][]tree.ID

func (m staticMembership) IsMember(groupID, userID tree.ID) bool {
	for _, id := range m[groupID] {
		if id == userID {
			return true
		}
	}
	return false
}

type fixture struct {
	store   *treeMemory.MemoryStore
	blobs   *blobMemory.MemoryStore
	builder *Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := treeMemory.NewMemoryStore(access.NewResolver(staticMembership{
		readers: {bob},
	}))
	blobs := blobMemory.NewMemoryStore()
	return &fixture{store: store, blobs: blobs, builder: NewBuilder(store, blobs)}
}

func (fx *fixture) addFile(t *testing.T, principal, parent tree.ID, name, content string) *tree.File {
	t.Helper()
	ctx := context.Background()

	f, err := fx.store.CreateFile(ctx, principal, parent, name)
	require.NoError(t, err)
	intent, err := fx.store.PrepareWrite(ctx, principal, f.ID)
	require.NoError(t, err)
	_, err = fx.blobs.Put(ctx, intent.ContentID, strings.NewReader(content))
	require.NoError(t, err)
	f, _, err = fx.store.CommitWrite(ctx, principal, intent, uint64(len(content)), "text/plain")
	require.NoError(t, err)
	return f
}

// readZip extracts the archive into a name→content map. Directory entries
// map to an empty string.
func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(content)
	}
	return out
}

func TestWriteArchive(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	root, err := fx.store.CreateRoot(ctx, "alice", alice)
	require.NoError(t, err)
	docs, err := fx.store.CreateDirectory(ctx, alice, root.ID, "docs")
	require.NoError(t, err)
	_, err = fx.store.CreateDirectory(ctx, alice, root.ID, "empty")
	require.NoError(t, err)

	fx.addFile(t, alice, root.ID, "readme.txt", "hello")
	fx.addFile(t, alice, docs.ID, "plan.txt", "the plan")

	// Pending files are skipped.
	_, err = fx.store.CreateFile(ctx, alice, root.ID, "pending.txt")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, fx.builder.WriteArchive(ctx, alice, root.ID, &buf))

	entries := readZip(t, buf.Bytes())
	require.Equal(t, map[string]string{
		"alice/":              "",
		"alice/readme.txt":    "hello",
		"alice/docs/":         "",
		"alice/docs/plan.txt": "the plan",
		"alice/empty/":        "",
	}, entries)
}

func TestWriteArchivePrunesUnreadable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	root, err := fx.store.CreateRoot(ctx, "alice", alice)
	require.NoError(t, err)
	_, err = fx.store.SetDirectoryGrants(ctx, alice, root.ID, []tree.ID{readers}, nil)
	require.NoError(t, err)

	open, err := fx.store.CreateDirectory(ctx, alice, root.ID, "open")
	require.NoError(t, err)
	_, err = fx.store.SetDirectoryGrants(ctx, alice, open.ID, []tree.ID{readers}, nil)
	require.NoError(t, err)

	private, err := fx.store.CreateDirectory(ctx, alice, root.ID, "private")
	require.NoError(t, err)

	fx.addFile(t, alice, open.ID, "shared.txt", "for bob")
	fx.addFile(t, alice, private.ID, "secret.txt", "not for bob")

	var buf bytes.Buffer
	require.NoError(t, fx.builder.WriteArchive(ctx, bob, root.ID, &buf))

	entries := readZip(t, buf.Bytes())
	require.Contains(t, entries, "alice/open/shared.txt")
	require.NotContains(t, entries, "alice/private/")
	require.NotContains(t, entries, "alice/private/secret.txt")
}

func TestWriteArchiveDeniedOnRoot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	root, err := fx.store.CreateRoot(ctx, "alice", alice)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = fx.builder.WriteArchive(ctx, bob, root.ID, &buf)
	require.True(t, tree.IsCode(err, tree.ErrPermissionDenied))

	// Nothing was written, the caller can still send an error response.
	require.Zero(t, buf.Len())
}

func TestWriteArchiveMissingBlobSkipped(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	root, err := fx.store.CreateRoot(ctx, "alice", alice)
	require.NoError(t, err)

	fx.addFile(t, alice, root.ID, "kept.txt", "kept")
	gone := fx.addFile(t, alice, root.ID, "gone.txt", "gone")
	require.NoError(t, fx.blobs.Delete(ctx, gone.ContentID))

	var buf bytes.Buffer
	require.NoError(t, fx.builder.WriteArchive(ctx, alice, root.ID, &buf))

	entries := readZip(t, buf.Bytes())
	require.Contains(t, entries, "alice/kept.txt")
	require.NotContains(t, entries, "alice/gone.txt")
}
