// Package blob defines the content-addressed byte store behind the tree.
//
// The tree store owns names, hierarchy and permissions; the blob store owns
// bytes. The only coupling between the two is the ContentID the tree hands
// out on upload and resolves on download. Nothing in this package performs
// access control: a ContentID reaching a blob store has already passed the
// permission resolver.
package blob

import (
	"context"
	"errors"
	"io"

	"github.com/atticfs/attic/pkg/tree"
)

var (
	// ErrContentNotFound indicates the requested blob does not exist.
	// The API layer maps it to 404; the collector treats it as already gone.
	ErrContentNotFound = errors.New("content not found")

	// ErrTooLarge indicates an upload exceeded the configured size limit.
	// Maps to 400 at the API layer.
	ErrTooLarge = errors.New("content too large")
)

// Stats describes the store's current inventory.
type Stats struct {
	// Count is the number of blobs stored.
	Count uint64

	// TotalSize is the sum of all blob sizes in bytes.
	TotalSize uint64
}

// Store stores and retrieves immutable blobs keyed by ContentID.
//
// Blobs are written once: an upload always targets a fresh ContentID minted
// by the tree store, so there are no in-place updates and no concurrent
// writes to the same key. Delete is idempotent; deleting an unknown id
// succeeds so garbage collection can retry freely.
//
// Thread safety: implementations must be safe for concurrent use.
type Store interface {
	// Put streams the reader into a new blob and returns the byte count.
	// On error the partial blob is cleaned up; no half-written blob is ever
	// visible to Open.
	Put(ctx context.Context, id tree.ContentID, r io.Reader) (uint64, error)

	// Open returns a reader over the blob. The caller must close it.
	// Fails with ErrContentNotFound for unknown ids.
	Open(ctx context.Context, id tree.ContentID) (io.ReadCloser, error)

	// Size returns the blob's size in bytes without reading it.
	Size(ctx context.Context, id tree.ContentID) (uint64, error)

	// Delete removes the blob. Unknown ids are not an error.
	Delete(ctx context.Context, id tree.ContentID) error

	// List returns every ContentID currently stored. The collector diffs
	// this against the tree's referenced set.
	List(ctx context.Context) ([]tree.ContentID, error)

	// Stats returns the current inventory counters.
	Stats(ctx context.Context) (*Stats, error)

	// Healthcheck verifies the backend is reachable.
	Healthcheck(ctx context.Context) error
}

// LimitReader wraps r so that reading more than max bytes fails with
// ErrTooLarge instead of silently truncating. Callers pass the wrapped
// reader to Put; the store's cleanup-on-error then discards the partial
// blob of an oversized upload.
func LimitReader(r io.Reader, max uint64) io.Reader {
	return &limitReader{r: r, remaining: max}
}

type limitReader struct {
	r         io.Reader
	remaining uint64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining == 0 {
		// Probe one byte to distinguish "exactly at the limit" from "over".
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if uint64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= uint64(n)
	return n, err
}
