package gc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	blobMemory "github.com/atticfs/attic/pkg/blob/memory"
	"github.com/atticfs/attic/pkg/tree"
	treeMemory "github.com/atticfs/attic/pkg/tree/memory"
)

type allowAll struct{}

func (allowAll) Authorize(tree.ID, tree.AccessMeta, tree.Access) bool { return true }

type fixture struct {
	store     *treeMemory.MemoryStore
	blobs     *blobMemory.MemoryStore
	collector *Collector
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := treeMemory.NewMemoryStore(allowAll{})
	blobs := blobMemory.NewMemoryStore()
	return &fixture{
		store:     store,
		blobs:     blobs,
		collector: NewCollector(store, blobs, cfg),
	}
}

func (fx *fixture) addCommittedFile(t *testing.T, parent tree.ID, name string) tree.ContentID {
	t.Helper()
	ctx := context.Background()

	f, err := fx.store.CreateFile(ctx, 1, parent, name)
	require.NoError(t, err)
	intent, err := fx.store.PrepareWrite(ctx, 1, f.ID)
	require.NoError(t, err)
	_, err = fx.blobs.Put(ctx, intent.ContentID, strings.NewReader("content"))
	require.NoError(t, err)
	_, _, err = fx.store.CommitWrite(ctx, 1, intent, 7, "text/plain")
	require.NoError(t, err)
	return intent.ContentID
}

func TestOrphanDeletedAfterTwoRuns(t *testing.T) {
	fx := newFixture(t, Config{Enabled: true})
	ctx := context.Background()

	root, err := fx.store.CreateRoot(ctx, "root", 1)
	require.NoError(t, err)

	referenced := fx.addCommittedFile(t, root.ID, "kept.txt")
	_, err = fx.blobs.Put(ctx, "orphan-1", strings.NewReader("leaked"))
	require.NoError(t, err)

	// First run: the orphan becomes a candidate but survives, because it
	// could belong to an upload that is committing right now.
	stats, err := fx.collector.RunNow(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.OrphanedCount)
	require.Zero(t, stats.DeletedCount)

	_, err = fx.blobs.Open(ctx, "orphan-1")
	require.NoError(t, err)

	// Second run: still orphaned, now deleted.
	stats, err = fx.collector.RunNow(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.DeletedCount)

	ids, err := fx.blobs.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []tree.ContentID{referenced}, ids)
}

func TestCommittedBetweenRunsSurvives(t *testing.T) {
	fx := newFixture(t, Config{Enabled: true})
	ctx := context.Background()

	root, err := fx.store.CreateRoot(ctx, "root", 1)
	require.NoError(t, err)

	// An in-flight upload: blob stored, commit not yet done.
	f, err := fx.store.CreateFile(ctx, 1, root.ID, "inflight.txt")
	require.NoError(t, err)
	intent, err := fx.store.PrepareWrite(ctx, 1, f.ID)
	require.NoError(t, err)
	_, err = fx.blobs.Put(ctx, intent.ContentID, strings.NewReader("streaming"))
	require.NoError(t, err)

	_, err = fx.collector.RunNow(ctx)
	require.NoError(t, err)

	// The commit lands between runs; the candidate must be dropped.
	_, _, err = fx.store.CommitWrite(ctx, 1, intent, 9, "text/plain")
	require.NoError(t, err)

	stats, err := fx.collector.RunNow(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.DeletedCount)

	_, err = fx.blobs.Open(ctx, intent.ContentID)
	require.NoError(t, err)
}

func TestStalePendingSwept(t *testing.T) {
	fx := newFixture(t, Config{Enabled: true, PendingTTL: time.Nanosecond})
	ctx := context.Background()

	root, err := fx.store.CreateRoot(ctx, "root", 1)
	require.NoError(t, err)

	pending, err := fx.store.CreateFile(ctx, 1, root.ID, "stale.txt")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	stats, err := fx.collector.RunNow(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.PendingRemoved)

	_, err = fx.store.GetFile(ctx, pending.ID)
	require.True(t, tree.IsCode(err, tree.ErrNotFound))
}

func TestDryRunDeletesNothing(t *testing.T) {
	fx := newFixture(t, Config{Enabled: true, DryRun: true})
	ctx := context.Background()

	_, err := fx.blobs.Put(ctx, "orphan-1", strings.NewReader("leaked"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		stats, err := fx.collector.RunNow(ctx)
		require.NoError(t, err)
		require.Zero(t, stats.DeletedCount)
	}

	_, err = fx.blobs.Open(ctx, "orphan-1")
	require.NoError(t, err)
}

func TestStartStopLifecycle(t *testing.T) {
	fx := newFixture(t, Config{Enabled: true, Interval: time.Hour})

	fx.collector.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fx.collector.Stop(ctx))
}

func TestDisabledCollector(t *testing.T) {
	fx := newFixture(t, Config{Enabled: false})

	fx.collector.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fx.collector.Stop(ctx))
}
