package memory

import (
	"context"

	"github.com/atticfs/attic/pkg/tree"
)

// CreateRoot creates a parentless directory. Root creation happens during
// startup seeding and user registration; it is not reachable from the
// request surface, so no permission check applies.
func (s *MemoryStore) CreateRoot(ctx context.Context, name string, owner tree.ID) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.allocateID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	dir := &tree.Directory{
		ID:          id,
		Parent:      0,
		Name:        name,
		Owner:       owner,
		ReadGroups:  tree.NewGrantSet(),
		WriteGroups: tree.NewGrantSet(),
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	s.dirs[id] = dir
	s.children[id] = make(map[string]tree.ID)

	return dir.Clone(), nil
}

// CreateDirectory creates a child directory under parentID.
func (s *MemoryStore) CreateDirectory(ctx context.Context, principal, parentID tree.ID, name string) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.dirs[parentID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if !s.authz.Authorize(principal, parent.AccessMeta(), tree.AccessWrite) {
		return nil, tree.NewError(tree.ErrPermissionDenied, name)
	}
	if _, exists := s.children[parentID][name]; exists {
		return nil, tree.NewError(tree.ErrNameConflict, name)
	}

	id, err := s.allocateID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	dir := &tree.Directory{
		ID:          id,
		Parent:      parentID,
		Name:        name,
		Owner:       principal,
		ReadGroups:  tree.NewGrantSet(),
		WriteGroups: tree.NewGrantSet(),
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	s.dirs[id] = dir
	s.children[id] = make(map[string]tree.ID)
	s.children[parentID][name] = id
	parent.ModifiedAt = now

	return dir.Clone(), nil
}

// ListChildren returns the directory's children annotated with the
// principal's effective access on each.
func (s *MemoryStore) ListChildren(ctx context.Context, principal, dirID tree.ID) (*tree.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, ok := s.dirs[dirID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	dirMeta := dir.AccessMeta()
	if !s.authz.Authorize(principal, dirMeta, tree.AccessRead) {
		return nil, tree.NewError(tree.ErrPermissionDenied, dir.Name)
	}

	listing := &tree.Listing{Directory: dir.Clone()}

	for _, name := range s.sortedChildNames(dirID) {
		childID := s.children[dirID][name]

		if child, ok := s.dirs[childID]; ok {
			meta := child.AccessMeta()
			listing.Directories = append(listing.Directories, tree.DirEntry{
				Directory: *child.Clone(),
				CanRead:   s.authz.Authorize(principal, meta, tree.AccessRead),
				CanWrite:  s.authz.Authorize(principal, meta, tree.AccessWrite),
			})
			continue
		}

		if child, ok := s.files[childID]; ok {
			// File access follows the parent directory's grants, which were
			// already evaluated above; only ownership can widen them.
			listing.Files = append(listing.Files, tree.FileEntry{
				File:     *child.Clone(),
				CanRead:  true,
				CanWrite: principal == child.Owner || s.authz.Authorize(principal, s.fileAccessMeta(child), tree.AccessWrite),
			})
		}
	}

	return listing, nil
}

// RemoveDirectory deletes the directory and its whole subtree, returning
// the blob handles of every complete file it contained.
//
// The cascade runs under the write lock, so a create racing the delete
// either lands before the sweep (and is removed with the subtree) or finds
// the parent gone and fails with NotFound. A child is never silently lost.
func (s *MemoryStore) RemoveDirectory(ctx context.Context, principal, dirID tree.ID) ([]tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, ok := s.dirs[dirID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if dir.IsRoot() {
		// A user's root is structural; it cannot be deleted through the API.
		return nil, tree.NewError(tree.ErrPermissionDenied, dir.Name)
	}
	if !s.authz.Authorize(principal, dir.AccessMeta(), tree.AccessWrite) {
		return nil, tree.NewError(tree.ErrPermissionDenied, dir.Name)
	}

	// Detach from the parent first, then sweep the subtree iteratively.
	if siblings, ok := s.children[dir.Parent]; ok {
		delete(siblings, dir.Name)
	}
	if parent, ok := s.dirs[dir.Parent]; ok {
		parent.ModifiedAt = s.now()
	}

	var released []tree.ContentID
	stack := []tree.ID{dirID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, childID := range s.children[id] {
			stack = append(stack, childID)
		}
		delete(s.children, id)

		if f, ok := s.files[id]; ok {
			if f.Complete {
				released = append(released, f.ContentID)
			}
			delete(s.files, id)
			continue
		}
		delete(s.dirs, id)
	}

	return released, nil
}

// RenameDirectory renames the directory within its parent.
func (s *MemoryStore) RenameDirectory(ctx context.Context, principal, dirID tree.ID, name string) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, ok := s.dirs[dirID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if dir.IsRoot() {
		return nil, tree.NewError(tree.ErrPermissionDenied, dir.Name)
	}
	if !s.authz.Authorize(principal, dir.AccessMeta(), tree.AccessWrite) {
		return nil, tree.NewError(tree.ErrPermissionDenied, dir.Name)
	}
	if name == dir.Name {
		return dir.Clone(), nil
	}
	if _, exists := s.children[dir.Parent][name]; exists {
		return nil, tree.NewError(tree.ErrNameConflict, name)
	}

	delete(s.children[dir.Parent], dir.Name)
	s.children[dir.Parent][name] = dirID
	dir.Name = name
	dir.ModifiedAt = s.now()

	return dir.Clone(), nil
}

// SetDirectoryGrants replaces the directory's grant sets. Grant changes are
// an owner-only operation: write grants let a group add content, not widen
// access for others.
func (s *MemoryStore) SetDirectoryGrants(ctx context.Context, principal, dirID tree.ID, read, write []tree.ID) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, ok := s.dirs[dirID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if principal != dir.Owner {
		return nil, tree.NewError(tree.ErrPermissionDenied, dir.Name)
	}

	if read != nil {
		dir.ReadGroups = tree.NewGrantSet(read...)
	}
	if write != nil {
		dir.WriteGroups = tree.NewGrantSet(write...)
	}
	dir.ModifiedAt = s.now()

	return dir.Clone(), nil
}

// Path returns the chain of directories from the root down to dirID.
func (s *MemoryStore) Path(ctx context.Context, dirID tree.ID) ([]*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []*tree.Directory
	id := dirID
	// The hop bound turns a (theoretically impossible) parent cycle into a
	// NotFound instead of a wedged request.
	for hops := 0; hops <= len(s.dirs); hops++ {
		dir, ok := s.dirs[id]
		if !ok {
			return nil, tree.NewError(tree.ErrNotFound, "")
		}
		chain = append(chain, dir.Clone())
		if dir.IsRoot() {
			// Reverse into root-first order.
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain, nil
		}
		id = dir.Parent
	}

	return nil, tree.NewError(tree.ErrNotFound, "")
}
