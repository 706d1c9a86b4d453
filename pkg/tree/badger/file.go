package badger

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/atticfs/attic/pkg/tree"
)

// CreateFile registers a pending file under parentID.
func (s *BadgerStore) CreateFile(ctx context.Context, principal, parentID tree.ID, name string) (*tree.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var f *tree.File
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
		f = &tree.File{
			ID:         id,
			Parent:     parentID,
			Name:       name,
			Owner:      principal,
			Complete:   false,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if err := setFile(txn, f); err != nil {
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
	return f, nil
}

// RenameFile renames the file within its parent.
func (s *BadgerStore) RenameFile(ctx context.Context, principal, fileID tree.ID, name string) (*tree.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var f *tree.File
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		f, err = getFile(txn, fileID)
		if err != nil {
			return err
		}
		meta, err := fileAccessMeta(txn, f)
		if err != nil {
			return err
		}
		if !s.authz.Authorize(principal, meta, tree.AccessWrite) {
			return tree.NewError(tree.ErrPermissionDenied, f.Name)
		}
		if name == f.Name {
			return nil
		}
		exists, err := childExists(txn, f.Parent, name)
		if err != nil {
			return err
		}
		if exists {
			return tree.NewError(tree.ErrNameConflict, name)
		}

		if err := txn.Delete(keyChild(f.Parent, f.Name)); err != nil {
			return err
		}
		if err := txn.Set(keyChild(f.Parent, name), []byte(fileID.Hex())); err != nil {
			return err
		}
		f.Name = name
		f.ModifiedAt = s.now()
		return setFile(txn, f)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// RemoveFile deletes the file metadata and returns the blob handle to
// release.
func (s *BadgerStore) RemoveFile(ctx context.Context, principal, fileID tree.ID) (tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var released tree.ContentID
	err := s.db.Update(func(txn *badger.Txn) error {
		f, err := getFile(txn, fileID)
		if err != nil {
			return err
		}
		meta, err := fileAccessMeta(txn, f)
		if err != nil {
			return err
		}
		if !s.authz.Authorize(principal, meta, tree.AccessWrite) {
			return tree.NewError(tree.ErrPermissionDenied, f.Name)
		}

		if err := txn.Delete(keyChild(f.Parent, f.Name)); err != nil {
			return err
		}
		if err := txn.Delete(keyFile(fileID)); err != nil {
			return err
		}
		if parent, perr := getDir(txn, f.Parent); perr == nil {
			parent.ModifiedAt = s.now()
			if err := setDir(txn, parent); err != nil {
				return err
			}
		}

		if f.Complete {
			released = f.ContentID
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return released, nil
}

// PrepareWrite validates an upload and mints a fresh blob handle.
func (s *BadgerStore) PrepareWrite(ctx context.Context, principal, fileID tree.ID) (*tree.WriteIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var intent *tree.WriteIntent
	err := s.db.View(func(txn *badger.Txn) error {
		f, err := getFile(txn, fileID)
		if err != nil {
			return err
		}
		meta, err := fileAccessMeta(txn, f)
		if err != nil {
			return err
		}
		if !s.authz.Authorize(principal, meta, tree.AccessWrite) {
			return tree.NewError(tree.ErrPermissionDenied, f.Name)
		}

		intent = &tree.WriteIntent{
			FileID:    fileID,
			ContentID: tree.ContentID(uuid.NewString()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// CommitWrite records the uploaded content on the file and flips it to
// Complete, returning the replaced blob handle.
func (s *BadgerStore) CommitWrite(ctx context.Context, principal tree.ID, intent *tree.WriteIntent, size uint64, contentType string) (*tree.File, tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var f *tree.File
	var replaced tree.ContentID
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		f, err = getFile(txn, intent.FileID)
		if err != nil {
			return err
		}
		meta, err := fileAccessMeta(txn, f)
		if err != nil {
			return err
		}
		if !s.authz.Authorize(principal, meta, tree.AccessWrite) {
			return tree.NewError(tree.ErrPermissionDenied, f.Name)
		}

		if f.Complete {
			replaced = f.ContentID
		}
		f.ContentID = intent.ContentID
		f.Size = size
		f.ContentType = contentType
		f.Complete = true
		f.ModifiedAt = s.now()
		return setFile(txn, f)
	})
	if err != nil {
		return nil, "", err
	}
	return f, replaced, nil
}

// PrepareRead validates a download and returns the file metadata.
func (s *BadgerStore) PrepareRead(ctx context.Context, principal, fileID tree.ID) (*tree.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var f *tree.File
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		f, err = getFile(txn, fileID)
		if err != nil {
			return err
		}
		meta, err := fileAccessMeta(txn, f)
		if err != nil {
			return err
		}
		if !s.authz.Authorize(principal, meta, tree.AccessRead) {
			return tree.NewError(tree.ErrPermissionDenied, f.Name)
		}
		if !f.Complete {
			return tree.NewError(tree.ErrContentNotReady, f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
