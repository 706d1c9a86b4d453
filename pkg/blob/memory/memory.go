// Package memory implements the blob store in process memory. Default for
// development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// MemoryStore keeps each blob as a byte slice in a map.
//
// Thread safety: a single RWMutex guards the map. Put buffers the whole
// reader before taking the lock, so uploads do not block reads.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[tree.ContentID][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[tree.ContentID][]byte)}
}

// Put reads r to completion and stores the bytes under id.
func (s *MemoryStore) Put(ctx context.Context, id tree.ContentID, r io.Reader) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return 0, err
	}
	data := buf.Bytes()

	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()

	return uint64(len(data)), nil
}

// Open returns a reader over a private copy of the blob.
func (s *MemoryStore) Open(ctx context.Context, id tree.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("blob %s: %w", id, blob.ErrContentNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Size returns the blob's length.
func (s *MemoryStore) Size(ctx context.Context, id tree.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[id]
	if !ok {
		return 0, fmt.Errorf("blob %s: %w", id, blob.ErrContentNotFound)
	}
	return uint64(len(data)), nil
}

// Delete removes the blob. Unknown ids are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id tree.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
	return nil
}

// List returns every stored ContentID.
func (s *MemoryStore) List(ctx context.Context) ([]tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]tree.ContentID, 0, len(s.blobs))
	for id := range s.blobs {
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats returns the inventory counters.
func (s *MemoryStore) Stats(ctx context.Context) (*blob.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &blob.Stats{Count: uint64(len(s.blobs))}
	for _, data := range s.blobs {
		stats.TotalSize += uint64(len(data))
	}
	return stats, nil
}

// Healthcheck reports readiness.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}
