// Package fs implements the blob store on a local directory. Each blob is
// one file named after its ContentID.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// FSStore stores blobs under a root directory.
//
// Writes go to a temp file in the same directory and are renamed into place
// on success, so Open never observes a partial blob. Blobs are immutable
// once written; there is no in-place update path.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns the store.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root %q: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

// path maps a ContentID to its file path. Ids are uuid strings minted by
// the tree store; anything with a separator is rejected outright so a
// corrupted id can never escape the root.
func (s *FSStore) path(id tree.ContentID) (string, error) {
	name := string(id)
	if name == "" || strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return "", fmt.Errorf("blob id %q: %w", name, blob.ErrContentNotFound)
	}
	return filepath.Join(s.root, name), nil
}

// Put streams r into a temp file and renames it to the blob path.
func (s *FSStore) Put(ctx context.Context, id tree.ContentID, r io.Reader) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dst, err := s.path(id)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("commit blob %s: %w", id, err)
	}

	return uint64(written), nil
}

// Open returns a reader over the blob file.
func (s *FSStore) Open(ctx context.Context, id tree.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", id, blob.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", id, err)
	}
	return f, nil
}

// Size returns the blob file's size.
func (s *FSStore) Size(ctx context.Context, id tree.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p, err := s.path(id)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("blob %s: %w", id, blob.ErrContentNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("stat blob %s: %w", id, err)
	}
	return uint64(info.Size()), nil
}

// Delete removes the blob file. Missing files are a no-op.
func (s *FSStore) Delete(ctx context.Context, id tree.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

// List returns the ContentIDs of every blob file under the root. In-flight
// temp files are skipped.
func (s *FSStore) List(ctx context.Context) ([]tree.ContentID, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list blob root: %w", err)
	}

	ids := make([]tree.ContentID, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, tree.ContentID(entry.Name()))
	}
	return ids, nil
}

// Stats walks the root and sums file sizes.
func (s *FSStore) Stats(ctx context.Context) (*blob.Stats, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("stat blob root: %w", err)
	}

	stats := &blob.Stats{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.Count++
		stats.TotalSize += uint64(info.Size())
	}
	return stats, nil
}

// Healthcheck verifies the root directory is still accessible.
func (s *FSStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("blob root %q: %w", s.root, err)
	}
	return nil
}
