package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/atticfs/attic/pkg/tree"
)

// CreateFile registers a pending file under parentID. Content arrives later
// through PrepareWrite/CommitWrite.
func (s *MemoryStore) CreateFile(ctx context.Context, principal, parentID tree.ID, name string) (*tree.File, error) {
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
	f := &tree.File{
		ID:         id,
		Parent:     parentID,
		Name:       name,
		Owner:      principal,
		Complete:   false,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	s.files[id] = f
	s.children[parentID][name] = id
	parent.ModifiedAt = now

	return f.Clone(), nil
}

// RenameFile renames the file within its parent.
func (s *MemoryStore) RenameFile(ctx context.Context, principal, fileID tree.ID, name string) (*tree.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if !s.authz.Authorize(principal, s.fileAccessMeta(f), tree.AccessWrite) {
		return nil, tree.NewError(tree.ErrPermissionDenied, f.Name)
	}
	if name == f.Name {
		return f.Clone(), nil
	}
	if _, exists := s.children[f.Parent][name]; exists {
		return nil, tree.NewError(tree.ErrNameConflict, name)
	}

	delete(s.children[f.Parent], f.Name)
	s.children[f.Parent][name] = fileID
	f.Name = name
	f.ModifiedAt = s.now()

	return f.Clone(), nil
}

// RemoveFile deletes the file metadata and returns the blob handle to
// release. Pending files have no blob, so the returned handle is empty.
func (s *MemoryStore) RemoveFile(ctx context.Context, principal, fileID tree.ID) (tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	if !ok {
		return "", tree.NewError(tree.ErrNotFound, "")
	}
	if !s.authz.Authorize(principal, s.fileAccessMeta(f), tree.AccessWrite) {
		return "", tree.NewError(tree.ErrPermissionDenied, f.Name)
	}

	if siblings, ok := s.children[f.Parent]; ok {
		delete(siblings, f.Name)
	}
	if parent, ok := s.dirs[f.Parent]; ok {
		parent.ModifiedAt = s.now()
	}
	delete(s.files, fileID)

	if f.Complete {
		return f.ContentID, nil
	}
	return "", nil
}

// PrepareWrite validates an upload and mints a fresh blob handle. No
// metadata changes happen here: if the caller never commits, the file stays
// in its previous state and the orphaned blob is reclaimed by the collector.
func (s *MemoryStore) PrepareWrite(ctx context.Context, principal, fileID tree.ID) (*tree.WriteIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if !s.authz.Authorize(principal, s.fileAccessMeta(f), tree.AccessWrite) {
		return nil, tree.NewError(tree.ErrPermissionDenied, f.Name)
	}

	return &tree.WriteIntent{
		FileID:    fileID,
		ContentID: tree.ContentID(uuid.NewString()),
	}, nil
}

// CommitWrite records the uploaded content on the file and flips it to
// Complete. Returns the replaced blob handle (empty on a first upload) so
// the caller can release it. Concurrent commits are last-wins; the loser's
// blob comes back as the replaced handle of the winner or is swept by the
// collector.
func (s *MemoryStore) CommitWrite(ctx context.Context, principal tree.ID, intent *tree.WriteIntent, size uint64, contentType string) (*tree.File, tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[intent.FileID]
	if !ok {
		return nil, "", tree.NewError(tree.ErrNotFound, "")
	}
	if !s.authz.Authorize(principal, s.fileAccessMeta(f), tree.AccessWrite) {
		return nil, "", tree.NewError(tree.ErrPermissionDenied, f.Name)
	}

	var replaced tree.ContentID
	if f.Complete {
		replaced = f.ContentID
	}

	f.ContentID = intent.ContentID
	f.Size = size
	f.ContentType = contentType
	f.Complete = true
	f.ModifiedAt = s.now()

	return f.Clone(), replaced, nil
}

// PrepareRead validates a download and returns the file metadata. A pending
// file has no content yet, which surfaces as ContentNotReady.
func (s *MemoryStore) PrepareRead(ctx context.Context, principal, fileID tree.ID) (*tree.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if !s.authz.Authorize(principal, s.fileAccessMeta(f), tree.AccessRead) {
		return nil, tree.NewError(tree.ErrPermissionDenied, f.Name)
	}
	if !f.Complete {
		return nil, tree.NewError(tree.ErrContentNotReady, f.Name)
	}

	return f.Clone(), nil
}
