package api

import (
	"time"

	"github.com/atticfs/attic/pkg/identity"
	"github.com/atticfs/attic/pkg/tree"
)

// Response DTOs. Ids render in canonical hex via tree.ID's JSON encoding;
// owner and group references carry resolved display names so clients do
// not need a second round trip.

type principalRef struct {
	ID   tree.ID `json:"id"`
	Name string  `json:"name"`
}

type dirBody struct {
	ID          tree.ID        `json:"id"`
	Parent      *tree.ID       `json:"parent,omitempty"`
	Name        string         `json:"name"`
	Owner       principalRef   `json:"owner"`
	ReadGroups  []principalRef `json:"read_groups"`
	WriteGroups []principalRef `json:"write_groups"`
	CreatedAt   time.Time      `json:"created_at"`
	ModifiedAt  time.Time      `json:"modified_at"`
}

type fileBody struct {
	ID         tree.ID      `json:"id"`
	Parent     tree.ID      `json:"parent"`
	Name       string       `json:"name"`
	Owner      principalRef `json:"owner"`
	Pending    bool         `json:"pending"`
	Size       *uint64      `json:"size,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ModifiedAt time.Time    `json:"modified_at"`
}

type pathSegment struct {
	ID   tree.ID `json:"id"`
	Name string  `json:"name"`
}

type dirEntryBody struct {
	dirBody
	CanRead  bool `json:"can_read"`
	CanWrite bool `json:"can_write"`
}

type fileEntryBody struct {
	fileBody
	CanRead  bool `json:"can_read"`
	CanWrite bool `json:"can_write"`
}

type listingBody struct {
	Directory   dirBody         `json:"directory"`
	Path        []pathSegment   `json:"path"`
	Directories []dirEntryBody  `json:"directories"`
	Files       []fileEntryBody `json:"files"`
}

type userBody struct {
	ID      tree.ID `json:"id"`
	Name    string  `json:"name"`
	RootDir tree.ID `json:"root_dir"`
}

type groupBody struct {
	ID      tree.ID        `json:"id"`
	Name    string         `json:"name"`
	Members []principalRef `json:"members"`
}

func (a *API) userRef(id tree.ID) principalRef {
	return principalRef{ID: id, Name: a.registry.UserName(id)}
}

func (a *API) groupRefs(set tree.GrantSet) []principalRef {
	ids := set.Sorted()
	refs := make([]principalRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, principalRef{ID: id, Name: a.registry.GroupName(id)})
	}
	return refs
}

func (a *API) renderDir(d *tree.Directory) dirBody {
	body := dirBody{
		ID:          d.ID,
		Name:        d.Name,
		Owner:       a.userRef(d.Owner),
		ReadGroups:  a.groupRefs(d.ReadGroups),
		WriteGroups: a.groupRefs(d.WriteGroups),
		CreatedAt:   d.CreatedAt,
		ModifiedAt:  d.ModifiedAt,
	}
	if !d.IsRoot() {
		parent := d.Parent
		body.Parent = &parent
	}
	return body
}

func (a *API) renderFile(f *tree.File) fileBody {
	body := fileBody{
		ID:          f.ID,
		Parent:      f.Parent,
		Name:        f.Name,
		Owner:       a.userRef(f.Owner),
		Pending:     !f.Complete,
		ContentType: f.ContentType,
		CreatedAt:   f.CreatedAt,
		ModifiedAt:  f.ModifiedAt,
	}
	// A pending file's size is unknown, not zero; it stays absent from the
	// rendering until the upload commits.
	if f.Complete {
		size := f.Size
		body.Size = &size
	}
	return body
}

func (a *API) renderListing(listing *tree.Listing, path []*tree.Directory) listingBody {
	body := listingBody{
		Directory:   a.renderDir(listing.Directory),
		Path:        make([]pathSegment, 0, len(path)),
		Directories: make([]dirEntryBody, 0, len(listing.Directories)),
		Files:       make([]fileEntryBody, 0, len(listing.Files)),
	}
	for _, dir := range path {
		body.Path = append(body.Path, pathSegment{ID: dir.ID, Name: dir.Name})
	}
	for i := range listing.Directories {
		entry := &listing.Directories[i]
		body.Directories = append(body.Directories, dirEntryBody{
			dirBody:  a.renderDir(&entry.Directory),
			CanRead:  entry.CanRead,
			CanWrite: entry.CanWrite,
		})
	}
	for i := range listing.Files {
		entry := &listing.Files[i]
		body.Files = append(body.Files, fileEntryBody{
			fileBody: a.renderFile(&entry.File),
			CanRead:  entry.CanRead,
			CanWrite: entry.CanWrite,
		})
	}
	return body
}

func renderUser(u *identity.User) userBody {
	return userBody{ID: u.ID, Name: u.Name, RootDir: u.RootDir}
}

func (a *API) renderGroup(g *identity.Group) groupBody {
	members := make([]principalRef, 0, len(g.Members))
	for _, id := range g.Members {
		members = append(members, a.userRef(id))
	}
	return groupBody{ID: g.ID, Name: g.Name, Members: members}
}
