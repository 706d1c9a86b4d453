// Package memory implements the tree store with in-memory data structures.
//
// It is the default store for development and tests and the reference for
// the persistent badger implementation: both must exhibit identical
// domain behavior.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atticfs/attic/pkg/tree"
)

// MemoryStore implements tree.Store using id-indexed maps.
//
// Storage model:
//   - dirs, files: the node arenas, keyed by id. Nodes store only their
//     parent id; no child lists live on the nodes themselves.
//   - children: the secondary parent→(name→id) index. Directories and files
//     share one namespace per parent, which is what makes sibling-name
//     uniqueness a map-key property instead of a scan.
//   - used: every id ever allocated. Entries are never removed, so a deleted
//     node's id can never be reissued to a new node.
//
// Thread safety: a single RWMutex guards all maps. Queries take the read
// lock, mutations the write lock, so a reader always observes either the
// full pre-mutation or the full post-mutation state. This coarse-grained
// locking is simple and correct; per-shard locking would only matter at
// throughputs far beyond what a single-process drive serves.
type MemoryStore struct {
	mu sync.RWMutex

	dirs     map[tree.ID]*tree.Directory
	files    map[tree.ID]*tree.File
	children map[tree.ID]map[string]tree.ID
	used     map[tree.ID]struct{}

	alloc tree.Allocator
	authz tree.Authorizer

	// now is the clock, swappable by tests exercising the stale-pending sweep.
	now func() time.Time
}

// NewMemoryStore creates an empty store using the given permission resolver.
func NewMemoryStore(authz tree.Authorizer) *MemoryStore {
	return &MemoryStore{
		dirs:     make(map[tree.ID]*tree.Directory),
		files:    make(map[tree.ID]*tree.File),
		children: make(map[tree.ID]map[string]tree.ID),
		used:     make(map[tree.ID]struct{}),
		authz:    authz,
		now:      time.Now,
	}
}

// allocateID draws a fresh id and reserves it. Must be called with the
// write lock held so the reservation is atomic with the insert that follows.
func (s *MemoryStore) allocateID() (tree.ID, error) {
	id, err := s.alloc.Allocate(func(id tree.ID) bool {
		_, taken := s.used[id]
		return taken
	})
	if err != nil {
		return 0, err
	}
	s.used[id] = struct{}{}
	return id, nil
}

// validateName rejects names the tree cannot represent: empty names, the
// dot names, path separators (they would corrupt archive member paths) and
// colons (the persistent store's key separator).
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/:") {
		return tree.NewError(tree.ErrNameInvalid, name)
	}
	return nil
}

// fileAccessMeta builds the effective access metadata for a file: its own
// owner plus the parent directory's grant sets. Must be called with a lock
// held.
func (s *MemoryStore) fileAccessMeta(f *tree.File) tree.AccessMeta {
	meta := tree.AccessMeta{Owner: f.Owner}
	if parent, ok := s.dirs[f.Parent]; ok {
		meta.ReadGroups = parent.ReadGroups
		meta.WriteGroups = parent.WriteGroups
	}
	return meta
}

// sortedChildNames returns the child names of a directory in order.
// Must be called with a lock held.
func (s *MemoryStore) sortedChildNames(dirID tree.ID) []string {
	entries := s.children[dirID]
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDirectory returns the directory with the given id.
func (s *MemoryStore) GetDirectory(ctx context.Context, id tree.ID) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, ok := s.dirs[id]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	return dir.Clone(), nil
}

// GetFile returns the file with the given id.
func (s *MemoryStore) GetFile(ctx context.Context, id tree.ID) (*tree.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	return f.Clone(), nil
}

// Healthcheck reports readiness. The memory store has no external
// dependencies, so only context state matters.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}
