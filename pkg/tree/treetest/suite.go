// Package treetest provides a reusable conformance suite for tree.Store
// implementations. The memory and badger stores both run it, which keeps
// their domain behavior identical.
package treetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/access"
	"github.com/atticfs/attic/pkg/tree"
)

// Fixture principals. Alice owns the test root; Bob belongs to the readers
// group, Carol to the writers group, Dave to nothing.
const (
	Alice = tree.ID(0xa11ce)
	Bob   = tree.ID(0xb0b)
	Carol = tree.ID(0xca401)
	Dave  = tree.ID(0xda4e)

	Readers = tree.ID(0x4ead)
	Writers = tree.ID(0x1247e)
)

// memberships is a static group-membership table.
type memberships map[tree.ID][]tree.ID

func (m memberships) IsMember(groupID, userID tree.ID) bool {
	for _, id := range m[groupID] {
		if id == userID {
			return true
		}
	}
	return false
}

// Suite runs the conformance tests against the store built by NewStore.
type Suite struct {
	// NewStore returns a fresh, empty store wired to the given resolver.
	NewStore func(t *testing.T, authz tree.Authorizer) tree.Store
}

// Run executes every conformance test.
func (s *Suite) Run(t *testing.T) {
	t.Run("Directories", s.runDirectoryTests)
	t.Run("Files", s.runFileTests)
	t.Run("Maintenance", s.runMaintenanceTests)
}

// store builds a store with the fixture membership table.
func (s *Suite) store(t *testing.T) tree.Store {
	t.Helper()
	return s.NewStore(t, access.NewResolver(memberships{
		Readers: {Bob},
		Writers: {Carol},
	}))
}

// createRoot creates Alice's root directory.
func createRoot(t *testing.T, store tree.Store) *tree.Directory {
	t.Helper()
	root, err := store.CreateRoot(context.Background(), "alice", Alice)
	require.NoError(t, err)
	return root
}

// createCompleteFile creates a file and commits content of the given size.
func createCompleteFile(t *testing.T, store tree.Store, principal, parent tree.ID, name string, size uint64) *tree.File {
	t.Helper()
	ctx := context.Background()

	f, err := store.CreateFile(ctx, principal, parent, name)
	require.NoError(t, err)

	intent, err := store.PrepareWrite(ctx, principal, f.ID)
	require.NoError(t, err)

	f, replaced, err := store.CommitWrite(ctx, principal, intent, size, "application/octet-stream")
	require.NoError(t, err)
	require.Empty(t, replaced)
	return f
}

// AssertCode asserts err is a StoreError with the given code.
func AssertCode(t *testing.T, code tree.ErrorCode, err error) {
	t.Helper()
	require.Error(t, err)
	got, ok := tree.CodeOf(err)
	require.True(t, ok, "expected a store error, got %v", err)
	require.Equal(t, code, got, "unexpected error code in %v", err)
}
