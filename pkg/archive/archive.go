// Package archive streams a directory subtree as a zip file.
//
// The archive is produced on the fly: entries are written to the response
// while the tree is walked, so the whole subtree never has to fit in memory
// or on local disk.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// Builder walks the tree and streams blobs into a zip writer.
type Builder struct {
	store tree.Store
	blobs blob.Store
}

// NewBuilder creates a builder over the given stores.
func NewBuilder(store tree.Store, blobs blob.Store) *Builder {
	return &Builder{store: store, blobs: blobs}
}

// WriteArchive streams dirID's subtree as a zip into w.
//
// The principal needs read access on dirID itself; that failure surfaces
// before any bytes are written so the caller can still send an error
// response. Inside the subtree the walk prunes silently: subdirectories the
// principal cannot read are omitted along with everything under them, and
// pending files are skipped. Directory entries are emitted even when empty
// so the extracted tree mirrors the stored one.
//
// The listing of each directory is a point-in-time snapshot; concurrent
// mutations can make a file vanish between listing and blob read, in which
// case its entry is dropped and the walk continues.
func (b *Builder) WriteArchive(ctx context.Context, principal, dirID tree.ID, w io.Writer) error {
	root, err := b.store.ListChildren(ctx, principal, dirID)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	if err := b.writeDir(ctx, zw, principal, root, root.Directory.Name+"/"); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func (b *Builder) writeDir(ctx context.Context, zw *zip.Writer, principal tree.ID, listing *tree.Listing, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hdr := &zip.FileHeader{Name: prefix, Modified: listing.Directory.ModifiedAt}
	if _, err := zw.CreateHeader(hdr); err != nil {
		return fmt.Errorf("archive entry %q: %w", prefix, err)
	}

	for i := range listing.Files {
		entry := &listing.Files[i]
		if !entry.SizeKnown() {
			continue
		}
		if err := b.writeFile(ctx, zw, &entry.File, prefix+entry.Name); err != nil {
			return err
		}
	}

	for i := range listing.Directories {
		entry := &listing.Directories[i]
		if !entry.CanRead {
			continue
		}
		child, err := b.store.ListChildren(ctx, principal, entry.ID)
		if err != nil {
			if tree.IsCode(err, tree.ErrNotFound) || tree.IsCode(err, tree.ErrPermissionDenied) {
				continue
			}
			return err
		}
		if err := b.writeDir(ctx, zw, principal, child, prefix+entry.Name+"/"); err != nil {
			return err
		}
	}

	return nil
}

func (b *Builder) writeFile(ctx context.Context, zw *zip.Writer, f *tree.File, name string) error {
	rc, err := b.blobs.Open(ctx, f.ContentID)
	if err != nil {
		// The file was replaced or removed mid-walk; drop the entry.
		if errors.Is(err, blob.ErrContentNotFound) {
			return nil
		}
		return fmt.Errorf("archive blob %s: %w", f.ContentID, err)
	}
	defer rc.Close()

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: f.ModifiedAt,
	}
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("archive entry %q: %w", name, err)
	}
	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("archive entry %q: %w", name, err)
	}
	return nil
}
