package badger

import (
	"context"
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/atticfs/attic/pkg/tree"
)

// CreateRoot creates a parentless directory.
func (s *BadgerStore) CreateRoot(ctx context.Context, name string, owner tree.ID) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var dir *tree.Directory
	err := s.db.Update(func(txn *badger.Txn) error {
		id, err := s.allocateID(txn)
		if err != nil {
			return err
		}

		now := s.now()
		dir = &tree.Directory{
			ID:          id,
			Parent:      0,
			Name:        name,
			Owner:       owner,
			ReadGroups:  tree.NewGrantSet(),
			WriteGroups: tree.NewGrantSet(),
			CreatedAt:   now,
			ModifiedAt:  now,
		}
		return setDir(txn, dir)
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// CreateDirectory creates a child directory under parentID.
func (s *BadgerStore) CreateDirectory(ctx context.Context, principal, parentID tree.ID, name string) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var dir *tree.Directory
	err := s.db.Update(func(txn *badger.Txn) error {
		parent, err := getDir(txn, parentID)
		if err != nil {
			return err
		}
		if !s.authz.Authorize(principal, parent.AccessMeta(), tree.AccessWrite) {
			return tree.NewError(tree.ErrPermissionDenied, name)
		}
		exists, err := childExists(txn, parentID, name)
		if err != nil {
			return err
		}
		if exists {
			return tree.NewError(tree.ErrNameConflict, name)
		}

		id, err := s.allocateID(txn)
		if err != nil {
			return err
		}

		now := s.now()
		dir = &tree.Directory{
			ID:          id,
			Parent:      parentID,
			Name:        name,
			Owner:       principal,
			ReadGroups:  tree.NewGrantSet(),
			WriteGroups: tree.NewGrantSet(),
			CreatedAt:   now,
			ModifiedAt:  now,
		}
		if err := setDir(txn, dir); err != nil {
			return err
		}
		if err := txn.Set(keyChild(parentID, name), []byte(id.Hex())); err != nil {
			return err
		}
		parent.ModifiedAt = now
		return setDir(txn, parent)
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// ListChildren returns the directory's children annotated with the
// principal's effective access on each.
func (s *BadgerStore) ListChildren(ctx context.Context, principal, dirID tree.ID) (*tree.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var listing *tree.Listing
	err := s.db.View(func(txn *badger.Txn) error {
		dir, err := getDir(txn, dirID)
		if err != nil {
			return err
		}
		dirMeta := dir.AccessMeta()
		if !s.authz.Authorize(principal, dirMeta, tree.AccessRead) {
			return tree.NewError(tree.ErrPermissionDenied, dir.Name)
		}

		listing = &tree.Listing{Directory: dir}

		entries, err := childEntries(txn, dirID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if child, err := getDir(txn, entry.id); err == nil {
				meta := child.AccessMeta()
				listing.Directories = append(listing.Directories, tree.DirEntry{
					Directory: *child,
					CanRead:   s.authz.Authorize(principal, meta, tree.AccessRead),
					CanWrite:  s.authz.Authorize(principal, meta, tree.AccessWrite),
				})
				continue
			} else if !tree.IsCode(err, tree.ErrNotFound) {
				return err
			}

			child, err := getFile(txn, entry.id)
			if err != nil {
				if tree.IsCode(err, tree.ErrNotFound) {
					continue
				}
				return err
			}
			meta, err := fileAccessMeta(txn, child)
			if err != nil {
				return err
			}
			listing.Files = append(listing.Files, tree.FileEntry{
				File:     *child,
				CanRead:  true,
				CanWrite: principal == child.Owner || s.authz.Authorize(principal, meta, tree.AccessWrite),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// RemoveDirectory deletes the directory and its whole subtree, returning
// the blob handles of every complete file it contained. The entire cascade
// commits in one transaction.
func (s *BadgerStore) RemoveDirectory(ctx context.Context, principal, dirID tree.ID) ([]tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var released []tree.ContentID
	err := s.db.Update(func(txn *badger.Txn) error {
		dir, err := getDir(txn, dirID)
		if err != nil {
			return err
		}
		if dir.IsRoot() {
			return tree.NewError(tree.ErrPermissionDenied, dir.Name)
		}
		if !s.authz.Authorize(principal, dir.AccessMeta(), tree.AccessWrite) {
			return tree.NewError(tree.ErrPermissionDenied, dir.Name)
		}

		if err := txn.Delete(keyChild(dir.Parent, dir.Name)); err != nil {
			return err
		}
		if parent, perr := getDir(txn, dir.Parent); perr == nil {
			parent.ModifiedAt = s.now()
			if err := setDir(txn, parent); err != nil {
				return err
			}
		}

		stack := []tree.ID{dirID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := childEntries(txn, id)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				stack = append(stack, entry.id)
				if err := txn.Delete(keyChild(id, entry.name)); err != nil {
					return err
				}
			}

			if f, ferr := getFile(txn, id); ferr == nil {
				if f.Complete {
					released = append(released, f.ContentID)
				}
				if err := txn.Delete(keyFile(id)); err != nil {
					return err
				}
				continue
			}
			if err := txn.Delete(keyDir(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// RenameDirectory renames the directory within its parent.
func (s *BadgerStore) RenameDirectory(ctx context.Context, principal, dirID tree.ID, name string) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var dir *tree.Directory
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		dir, err = getDir(txn, dirID)
		if err != nil {
			return err
		}
		if dir.IsRoot() {
			return tree.NewError(tree.ErrPermissionDenied, dir.Name)
		}
		if !s.authz.Authorize(principal, dir.AccessMeta(), tree.AccessWrite) {
			return tree.NewError(tree.ErrPermissionDenied, dir.Name)
		}
		if name == dir.Name {
			return nil
		}
		exists, err := childExists(txn, dir.Parent, name)
		if err != nil {
			return err
		}
		if exists {
			return tree.NewError(tree.ErrNameConflict, name)
		}

		if err := txn.Delete(keyChild(dir.Parent, dir.Name)); err != nil {
			return err
		}
		if err := txn.Set(keyChild(dir.Parent, name), []byte(dirID.Hex())); err != nil {
			return err
		}
		dir.Name = name
		dir.ModifiedAt = s.now()
		return setDir(txn, dir)
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// SetDirectoryGrants replaces the directory's grant sets. Owner only.
func (s *BadgerStore) SetDirectoryGrants(ctx context.Context, principal, dirID tree.ID, read, write []tree.ID) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var dir *tree.Directory
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		dir, err = getDir(txn, dirID)
		if err != nil {
			return err
		}
		if principal != dir.Owner {
			return tree.NewError(tree.ErrPermissionDenied, dir.Name)
		}

		if read != nil {
			dir.ReadGroups = tree.NewGrantSet(read...)
		}
		if write != nil {
			dir.WriteGroups = tree.NewGrantSet(write...)
		}
		dir.ModifiedAt = s.now()
		return setDir(txn, dir)
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// Path returns the chain of directories from the root down to dirID.
func (s *BadgerStore) Path(ctx context.Context, dirID tree.ID) ([]*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []*tree.Directory
	err := s.db.View(func(txn *badger.Txn) error {
		id := dirID
		const maxDepth = 4096
		for hops := 0; hops < maxDepth; hops++ {
			dir, err := getDir(txn, id)
			if err != nil {
				return err
			}
			chain = append(chain, dir)
			if dir.IsRoot() {
				for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
					chain[i], chain[j] = chain[j], chain[i]
				}
				return nil
			}
			id = dir.Parent
		}
		return tree.NewError(tree.ErrNotFound, "")
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// Roots returns every root directory. Implements tree.RootLister for
// startup seeding against a database surviving from a previous run.
func (s *BadgerStore) Roots(ctx context.Context) ([]*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots []*tree.Directory
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(dirPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec dirRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.Parent == 0 {
				roots = append(roots, recordToDir(&rec))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roots, nil
}
