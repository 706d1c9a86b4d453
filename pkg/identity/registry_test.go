package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/tree"
)

func TestAddUser(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	alice, err := r.AddUser(ctx, "alice")
	require.NoError(t, err)
	require.NotZero(t, alice.ID)
	require.Equal(t, "alice", alice.Name)
	require.True(t, r.UserExists(alice.ID))

	// Names are trimmed and unique.
	_, err = r.AddUser(ctx, "  alice  ")
	require.True(t, tree.IsCode(err, tree.ErrNameConflict))
	_, err = r.AddUser(ctx, "   ")
	require.True(t, tree.IsCode(err, tree.ErrNameInvalid))

	bob, err := r.AddUser(ctx, "bob")
	require.NoError(t, err)
	require.NotEqual(t, alice.ID, bob.ID)
}

func TestRestoreUser(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	alice, err := r.RestoreUser(ctx, "alice", tree.ID(42))
	require.NoError(t, err)
	require.Equal(t, tree.ID(42), alice.ID)
	require.True(t, r.UserExists(tree.ID(42)))

	// Restored ids count as used like allocated ones.
	_, err = r.RestoreUser(ctx, "bob", tree.ID(42))
	require.True(t, tree.IsCode(err, tree.ErrNameConflict))
	_, err = r.RestoreUser(ctx, "alice", tree.ID(43))
	require.True(t, tree.IsCode(err, tree.ErrNameConflict))

	_, err = r.RestoreUser(ctx, "carol", 0)
	require.True(t, tree.IsCode(err, tree.ErrNameInvalid))
	_, err = r.RestoreUser(ctx, "  ", tree.ID(44))
	require.True(t, tree.IsCode(err, tree.ErrNameInvalid))
}

func TestSetRootDir(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	alice, err := r.AddUser(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, r.SetRootDir(ctx, alice.ID, tree.ID(0x99)))

	got, err := r.User(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, tree.ID(0x99), got.RootDir)

	err = r.SetRootDir(ctx, tree.ID(0xdead), tree.ID(0x99))
	require.True(t, tree.IsCode(err, tree.ErrNotFound))
}

func TestGroupsAndMembership(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	alice, err := r.AddUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := r.AddUser(ctx, "bob")
	require.NoError(t, err)

	team, err := r.AddGroup(ctx, "team")
	require.NoError(t, err)
	require.Empty(t, team.Members)

	_, err = r.AddGroup(ctx, "team")
	require.True(t, tree.IsCode(err, tree.ErrNameConflict))

	// A group name may not collide with itself, but shares no namespace
	// with user names.
	_, err = r.AddGroup(ctx, "alice")
	require.NoError(t, err)

	updated, err := r.AddMember(ctx, team.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []tree.ID{alice.ID}, updated.Members)

	// Adding twice is a no-op.
	updated, err = r.AddMember(ctx, team.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, updated.Members, 1)

	require.True(t, r.IsMember(team.ID, alice.ID))
	require.False(t, r.IsMember(team.ID, bob.ID))
	require.False(t, r.IsMember(tree.ID(0xdead), alice.ID))

	_, err = r.AddMember(ctx, team.ID, tree.ID(0xdead))
	require.True(t, tree.IsCode(err, tree.ErrNotFound))
	_, err = r.AddMember(ctx, tree.ID(0xdead), alice.ID)
	require.True(t, tree.IsCode(err, tree.ErrNotFound))
}

func TestListings(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := r.AddUser(ctx, name)
		require.NoError(t, err)
	}
	_, err := r.AddGroup(ctx, "team")
	require.NoError(t, err)

	users, err := r.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for i := 1; i < len(users); i++ {
		require.Less(t, users[i-1].ID, users[i].ID)
	}

	groups, err := r.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestNameResolution(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	alice, err := r.AddUser(ctx, "alice")
	require.NoError(t, err)
	team, err := r.AddGroup(ctx, "team")
	require.NoError(t, err)

	require.Equal(t, "alice", r.UserName(alice.ID))
	require.Equal(t, "team", r.GroupName(team.ID))

	// Unknown ids fall back to hex so rendering never fails.
	require.Equal(t, tree.ID(0xdead).Hex(), r.UserName(tree.ID(0xdead)))
	require.Equal(t, tree.ID(0xdead).Hex(), r.GroupName(tree.ID(0xdead)))
}
