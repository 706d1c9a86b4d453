package tree

import (
	"sort"
	"time"
)

// ContentID is the opaque handle a file's metadata holds into the blob
// store. The tree layer never interprets it; only the blob store does.
type ContentID string

// Access is the kind of access a principal requests on a node.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

func (a Access) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// GrantSet is a set of group ids given read or write access to a directory.
type GrantSet map[ID]struct{}

// NewGrantSet builds a set from a list of group ids.
func NewGrantSet(ids ...ID) GrantSet {
	gs := make(GrantSet, len(ids))
	for _, id := range ids {
		gs[id] = struct{}{}
	}
	return gs
}

// Contains reports membership.
func (gs GrantSet) Contains(id ID) bool {
	_, ok := gs[id]
	return ok
}

// Clone returns an independent copy. Stores hand out clones so callers can
// never mutate shared state behind the store lock.
func (gs GrantSet) Clone() GrantSet {
	out := make(GrantSet, len(gs))
	for id := range gs {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the group ids in ascending order, for stable rendering.
func (gs GrantSet) Sorted() []ID {
	out := make([]ID, 0, len(gs))
	for id := range gs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Directory is a node of the storage tree.
//
// Children are never stored on the directory itself; membership is derived
// from the children of the parent index the store maintains. That keeps a
// single source of truth for the hierarchy and makes a cycle through a stale
// child list impossible.
type Directory struct {
	ID     ID
	Parent ID // 0 for roots
	Name   string
	Owner  ID

	// ReadGroups and WriteGroups are the directory's independent grant sets.
	ReadGroups  GrantSet
	WriteGroups GrantSet

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// IsRoot reports whether the directory is the root of a user's tree.
func (d *Directory) IsRoot() bool {
	return d.Parent == 0
}

// AccessMeta returns the fields the permission resolver evaluates.
func (d *Directory) AccessMeta() AccessMeta {
	return AccessMeta{
		Owner:       d.Owner,
		ReadGroups:  d.ReadGroups,
		WriteGroups: d.WriteGroups,
	}
}

// Clone returns a deep copy safe to hand outside the store lock.
func (d *Directory) Clone() *Directory {
	out := *d
	out.ReadGroups = d.ReadGroups.Clone()
	out.WriteGroups = d.WriteGroups.Clone()
	return &out
}

// File is a leaf of the storage tree.
//
// A file is created pending: metadata exists, Size and ContentID are
// undefined until the content upload commits. Size and ContentID become
// defined together, atomically; Complete is the externally visible marker.
type File struct {
	ID     ID
	Parent ID // always a directory, never 0
	Name   string
	Owner  ID

	// Complete is false while the file is pending. Size and ContentID are
	// meaningful only when Complete is true.
	Complete    bool
	Size        uint64
	ContentID   ContentID
	ContentType string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Clone returns a copy safe to hand outside the store lock.
func (f *File) Clone() *File {
	out := *f
	return &out
}

// AccessMeta carries the per-node fields the permission resolver consults:
// the owner and the grant sets. Files have no grant sets of their own; the
// store builds their AccessMeta from the parent directory's grants, so a
// group that can read a directory can read the files directly inside it.
type AccessMeta struct {
	Owner       ID
	ReadGroups  GrantSet
	WriteGroups GrantSet
}

// DirEntry is a directory child annotated with the caller's effective
// access, which the rendering collaborator shows as mode bits.
type DirEntry struct {
	Directory
	CanRead  bool
	CanWrite bool
}

// FileEntry is a file child annotated with the caller's effective access.
// SizeKnown is false for pending files; listings render their size as
// unknown rather than failing.
type FileEntry struct {
	File
	CanRead  bool
	CanWrite bool
}

// SizeKnown reports whether the entry has committed content.
func (e *FileEntry) SizeKnown() bool {
	return e.Complete
}

// Listing is the result of ListChildren: the directory itself plus its
// annotated children, sorted by name for stable rendering.
type Listing struct {
	Directory   *Directory
	Directories []DirEntry
	Files       []FileEntry
}

// WriteIntent is the first phase of the two-phase content upload.
//
// PrepareWrite validates permissions and reserves a fresh ContentID without
// touching file metadata; the caller streams the content under that id and
// then CommitWrite atomically flips the file to complete, returning any
// previous ContentID so the caller can release the replaced blob. A failed
// or abandoned upload leaves the file exactly as PrepareWrite found it.
// Two racing uploads to one file both commit; the later commit wins and the
// earlier one's blob comes back as the replaced ContentID, so no content is
// ever silently leaked.
type WriteIntent struct {
	FileID    ID
	ContentID ContentID
}
