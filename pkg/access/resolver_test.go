package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/pkg/tree"
)

type staticMembership map[tree.ID][]tree.ID

func (m staticMembership) IsMember(groupID, userID tree.ID) bool {
	for _, id := range m[groupID] {
		if id == userID {
			return true
		}
	}
	return false
}

func TestAuthorize(t *testing.T) {
	const (
		owner    = tree.ID(1)
		reader   = tree.ID(2)
		writer   = tree.ID(3)
		stranger = tree.ID(4)

		readGroup  = tree.ID(100)
		writeGroup = tree.ID(101)
	)

	r := NewResolver(staticMembership{
		readGroup:  {reader},
		writeGroup: {writer},
	})

	meta := tree.AccessMeta{
		Owner:       owner,
		ReadGroups:  tree.NewGrantSet(readGroup),
		WriteGroups: tree.NewGrantSet(writeGroup),
	}

	tests := []struct {
		name      string
		principal tree.ID
		access    tree.Access
		want      bool
	}{
		{"owner reads", owner, tree.AccessRead, true},
		{"owner writes", owner, tree.AccessWrite, true},
		{"reader reads", reader, tree.AccessRead, true},
		{"reader cannot write", reader, tree.AccessWrite, false},
		{"writer writes", writer, tree.AccessWrite, true},
		{"writer cannot read", writer, tree.AccessRead, false},
		{"stranger denied read", stranger, tree.AccessRead, false},
		{"stranger denied write", stranger, tree.AccessWrite, false},
		{"zero principal denied", 0, tree.AccessRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, r.Authorize(tt.principal, meta, tt.access))
		})
	}
}

func TestAuthorizeEmptyGrants(t *testing.T) {
	r := NewResolver(staticMembership{})
	meta := tree.AccessMeta{Owner: 1}

	require.True(t, r.Authorize(1, meta, tree.AccessRead))
	require.False(t, r.Authorize(2, meta, tree.AccessRead))
	require.False(t, r.Authorize(2, meta, tree.AccessWrite))
}
