package tree

import (
	"context"
	"time"
)

// Authorizer computes effective access for a (principal, node) pair.
//
// The store consults it on every operation that names a required access;
// it never hard-codes policy itself. pkg/access provides the implementation
// backed by the group registry.
type Authorizer interface {
	// Authorize reports whether the principal holds the requested access on
	// a node described by meta. It must be safe for concurrent use.
	Authorize(principal ID, meta AccessMeta, acc Access) bool
}

// Store is the directory tree manager: it owns the tree structure and the
// file metadata, coordinates with the permission resolver, and hands out
// ContentIDs that the blob store resolves to bytes.
//
// Separation of concerns mirrors the split between metadata and content:
// the store never touches file bytes. Upload is two-phase (PrepareWrite,
// stream to the blob store, CommitWrite) so a failed or abandoned upload
// leaves the file in the externally visible Pending state instead of a
// half-written one.
//
// Error handling: business failures are *StoreError values; everything else
// (context cancellation, backend I/O) is a plain wrapped error.
//
// Thread safety: implementations must be safe for concurrent use. A reader
// observes either the full pre-mutation or the full post-mutation state of
// any operation, never a partial one.
type Store interface {
	// CreateRoot creates a root directory (no parent) for a user. Roots are
	// created at startup from the seed configuration or when a user is
	// registered; they can never be deleted or renamed.
	CreateRoot(ctx context.Context, name string, owner ID) (*Directory, error)

	// CreateDirectory creates a child directory of parentID owned by the
	// principal. Fails with NameInvalid (empty name), NotFound (parent id
	// unknown or not a directory), PermissionDenied (no write access on the
	// parent), or NameConflict (sibling of either kind with that name).
	CreateDirectory(ctx context.Context, principal, parentID ID, name string) (*Directory, error)

	// GetDirectory returns the directory with the given id, unauthorized.
	// Callers that need permission checking use ListChildren or the
	// mutation operations, which check internally.
	GetDirectory(ctx context.Context, id ID) (*Directory, error)

	// ListChildren returns the directory and its children, each child
	// annotated with the principal's effective read/write access. Requires
	// read access on the directory itself; children are included regardless
	// of the principal's access to them, the flags carry that information.
	// Pending files are included with their size marked unknown.
	ListChildren(ctx context.Context, principal, dirID ID) (*Listing, error)

	// RemoveDirectory deletes the directory and cascades over its subtree.
	// Requires write access (or ownership) on the directory itself. Root
	// directories cannot be removed. Returns the ContentIDs of every
	// complete file in the removed subtree so the caller can release the
	// blobs; the metadata removal and the returned set are atomic.
	RemoveDirectory(ctx context.Context, principal, dirID ID) ([]ContentID, error)

	// RenameDirectory renames the directory in place. Same validation as
	// creation; requires write access on the directory.
	RenameDirectory(ctx context.Context, principal, dirID ID, name string) (*Directory, error)

	// SetDirectoryGrants replaces the directory's read and write grant sets.
	// Only the owner may change grants. A nil set leaves that side as is.
	SetDirectoryGrants(ctx context.Context, principal, dirID ID, read, write []ID) (*Directory, error)

	// Path returns the directories from the root down to dirID inclusive,
	// for breadcrumb rendering. Fails with NotFound for unknown ids or, in
	// the face of corruption, a broken ancestor link.
	Path(ctx context.Context, dirID ID) ([]*Directory, error)

	// CreateFile registers file metadata in the Pending state; the content
	// arrives later via PrepareWrite/CommitWrite. Validation matches
	// CreateDirectory.
	CreateFile(ctx context.Context, principal, parentID ID, name string) (*File, error)

	// GetFile returns the file with the given id, unauthorized.
	GetFile(ctx context.Context, id ID) (*File, error)

	// RenameFile renames the file in place. Requires write access.
	RenameFile(ctx context.Context, principal, fileID ID, name string) (*File, error)

	// RemoveFile deletes the file metadata and returns the ContentID to
	// release, which is empty for pending files. Requires write access.
	RemoveFile(ctx context.Context, principal, fileID ID) (ContentID, error)

	// PrepareWrite validates a content upload and reserves a fresh
	// ContentID. No metadata changes are made; an abandoned intent costs
	// nothing but an orphaned blob, which garbage collection reclaims.
	// Requires write access on the file.
	PrepareWrite(ctx context.Context, principal, fileID ID) (*WriteIntent, error)

	// CommitWrite atomically records size, content type and the intent's
	// ContentID, flipping the file to Complete. Returns the updated file
	// and the replaced ContentID (empty on first upload) for release.
	// Fails with NotFound if the file was deleted in the meantime.
	CommitWrite(ctx context.Context, principal ID, intent *WriteIntent, size uint64, contentType string) (*File, ContentID, error)

	// PrepareRead validates a content download and returns the file. Fails
	// with ContentNotReady while the file is pending. Requires read access.
	PrepareRead(ctx context.Context, principal, fileID ID) (*File, error)

	// AllContentIDs returns every ContentID referenced by complete files.
	// Garbage collection diffs this against the blob store's inventory.
	AllContentIDs(ctx context.Context) ([]ContentID, error)

	// RemoveStalePending deletes pending files created before the cutoff
	// and returns how many were removed. This is the cleanup pass for
	// clients that created metadata and never uploaded.
	RemoveStalePending(ctx context.Context, cutoff time.Time) (int, error)

	// Healthcheck verifies the store can serve requests.
	Healthcheck(ctx context.Context) error
}

// RootLister is an optional interface for stores that can enumerate root
// directories. Persistent stores implement it so startup seeding can relink
// users to roots surviving from a previous run instead of recreating them.
type RootLister interface {
	// Roots returns every directory with no parent.
	Roots(ctx context.Context) ([]*Directory, error)
}
