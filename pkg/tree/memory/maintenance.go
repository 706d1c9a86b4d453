package memory

import (
	"context"
	"time"

	"github.com/atticfs/attic/pkg/tree"
)

// AllContentIDs returns the blob handles referenced by complete files. The
// collector diffs this against the blob store's inventory to find orphans.
func (s *MemoryStore) AllContentIDs(ctx context.Context) ([]tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]tree.ContentID, 0, len(s.files))
	for _, f := range s.files {
		if f.Complete {
			ids = append(ids, f.ContentID)
		}
	}
	return ids, nil
}

// Roots returns every root directory. Implements tree.RootLister so the
// seeding path behaves identically across store types.
func (s *MemoryStore) Roots(ctx context.Context) ([]*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots []*tree.Directory
	for _, dir := range s.dirs {
		if dir.IsRoot() {
			roots = append(roots, dir.Clone())
		}
	}
	return roots, nil
}

// RemoveStalePending deletes pending files created before the cutoff. These
// are uploads whose metadata was registered but whose content never arrived.
func (s *MemoryStore) RemoveStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, f := range s.files {
		if f.Complete || !f.CreatedAt.Before(cutoff) {
			continue
		}
		if siblings, ok := s.children[f.Parent]; ok {
			delete(siblings, f.Name)
		}
		delete(s.files, id)
		removed++
	}
	return removed, nil
}
