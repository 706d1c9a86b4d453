// Package identity holds the users and groups the access-control engine
// evaluates grants against.
//
// The core does not manage credentials or sessions; authentication is an
// external collaborator that hands the API layer an already-resolved user
// id. The registry's job is membership: who exists, which groups exist, and
// who belongs to which group.
package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/atticfs/attic/pkg/tree"
)

// User is a principal. RootDir points at the user's root directory in the
// tree; it is set once during registration and never changes.
type User struct {
	ID      tree.ID `json:"id"`
	Name    string  `json:"name"`
	RootDir tree.ID `json:"root_dir"`
}

// Group is a named set of users, referenced by directory grant sets.
type Group struct {
	ID      tree.ID   `json:"id"`
	Name    string    `json:"name"`
	Members []tree.ID `json:"members"`
}

// Registry is the in-memory user/group store.
//
// Thread safety: a single RWMutex guards both maps; reads take the read
// lock. Ids come from the same collision-checked allocator scheme the tree
// stores use, and share the never-reuse guarantee (the used set only grows).
type Registry struct {
	mu sync.RWMutex

	users  map[tree.ID]*User
	groups map[tree.ID]*group
	used   map[tree.ID]struct{}

	alloc tree.Allocator
}

type group struct {
	id      tree.ID
	name    string
	members map[tree.ID]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[tree.ID]*User),
		groups: make(map[tree.ID]*group),
		used:   make(map[tree.ID]struct{}),
	}
}

// AddUser registers a user and returns it. Fails with NameInvalid for a
// blank name and NameConflict if the name is taken; user names double as
// login names for the external auth layer, so they are unique.
func (r *Registry) AddUser(ctx context.Context, name string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, tree.NewError(tree.ErrNameInvalid, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Name == name {
			return nil, tree.NewError(tree.ErrNameConflict, name)
		}
	}

	id, err := r.alloc.Allocate(func(id tree.ID) bool {
		_, taken := r.used[id]
		return taken
	})
	if err != nil {
		return nil, err
	}
	r.used[id] = struct{}{}

	u := &User{ID: id, Name: name}
	r.users[id] = u
	return &User{ID: u.ID, Name: u.Name, RootDir: u.RootDir}, nil
}

// RestoreUser registers a user under a previously issued id, so a principal
// recorded as owner in a persistent tree store keeps its identity across
// restarts. Fails with NameInvalid for a blank name or the zero id, and
// with NameConflict if the name or the id is already taken.
func (r *Registry) RestoreUser(ctx context.Context, name string, id tree.ID) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || id == 0 {
		return nil, tree.NewError(tree.ErrNameInvalid, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Name == name {
			return nil, tree.NewError(tree.ErrNameConflict, name)
		}
	}
	if _, taken := r.used[id]; taken {
		return nil, tree.NewError(tree.ErrNameConflict, name)
	}
	r.used[id] = struct{}{}

	u := &User{ID: id, Name: name}
	r.users[id] = u
	return &User{ID: u.ID, Name: u.Name, RootDir: u.RootDir}, nil
}

// SetRootDir records the user's root directory id. Registration creates the
// root in the tree store first, then links it here; the two steps are not
// atomic, but a user without a root is only visible during startup seeding.
func (r *Registry) SetRootDir(ctx context.Context, userID, dirID tree.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return tree.NewError(tree.ErrNotFound, "")
	}
	u.RootDir = dirID
	return nil
}

// AddGroup registers a group with no members.
func (r *Registry) AddGroup(ctx context.Context, name string) (*Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, tree.NewError(tree.ErrNameInvalid, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.groups {
		if g.name == name {
			return nil, tree.NewError(tree.ErrNameConflict, name)
		}
	}

	id, err := r.alloc.Allocate(func(id tree.ID) bool {
		_, taken := r.used[id]
		return taken
	})
	if err != nil {
		return nil, err
	}
	r.used[id] = struct{}{}

	r.groups[id] = &group{id: id, name: name, members: make(map[tree.ID]struct{})}
	return &Group{ID: id, Name: name, Members: []tree.ID{}}, nil
}

// AddMember adds a user to a group. Fails with NotFound if either side is
// unknown. Adding an existing member is a no-op.
func (r *Registry) AddMember(ctx context.Context, groupID, userID tree.ID) (*Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[groupID]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if _, ok := r.users[userID]; !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}

	g.members[userID] = struct{}{}
	return g.snapshot(), nil
}

// User returns the user with the given id.
func (r *Registry) User(ctx context.Context, id tree.ID) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	return &User{ID: u.ID, Name: u.Name, RootDir: u.RootDir}, nil
}

// Group returns the group with the given id.
func (r *Registry) Group(ctx context.Context, id tree.ID) (*Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[id]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	return g.snapshot(), nil
}

// Users returns all registered users sorted by id.
func (r *Registry) Users(ctx context.Context) ([]*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, &User{ID: u.ID, Name: u.Name, RootDir: u.RootDir})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// Groups returns all registered groups sorted by id.
func (r *Registry) Groups(ctx context.Context) ([]*Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g.snapshot())
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// UserExists reports whether the id names a registered user. The API layer
// uses it to reject requests carrying an unknown principal.
func (r *Registry) UserExists(id tree.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[id]
	return ok
}

// IsMember reports whether the user belongs to the group. Unknown groups
// have no members.
func (r *Registry) IsMember(groupID, userID tree.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[groupID]
	if !ok {
		return false
	}
	_, ok = g.members[userID]
	return ok
}

// UserName resolves an id to a display name, falling back to the hex id for
// unknown users so rendering never fails on a dangling owner reference.
func (r *Registry) UserName(id tree.ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.users[id]; ok {
		return u.Name
	}
	return id.Hex()
}

// GroupName resolves a group id to its name, falling back to the hex id.
func (r *Registry) GroupName(id tree.ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if g, ok := r.groups[id]; ok {
		return g.name
	}
	return id.Hex()
}

func (g *group) snapshot() *Group {
	members := make([]tree.ID, 0, len(g.members))
	for id := range g.members {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return &Group{ID: g.id, Name: g.name, Members: members}
}
