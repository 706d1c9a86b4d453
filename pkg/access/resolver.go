// Package access implements the permission resolver: the single place that
// turns (principal, node, requested access) into an allow/deny decision.
package access

import (
	"github.com/atticfs/attic/pkg/tree"
)

// Membership answers group-membership questions. Implemented by
// identity.Registry.
type Membership interface {
	IsMember(groupID, userID tree.ID) bool
}

// Resolver evaluates the access policy for a node.
//
// Policy, top-down, first match wins:
//  1. The owner holds both read and write.
//  2. Read is granted when the principal belongs to any group in the node's
//     read-grant set.
//  3. Write is granted when the principal belongs to any group in the node's
//     write-grant set.
//  4. Otherwise: denied.
//
// Evaluation is strictly per-node; nothing is inherited from ancestors. The
// one nuance lives in the tree store, not here: files carry no grant sets,
// so the store passes the parent directory's grants as the file's AccessMeta.
type Resolver struct {
	groups Membership
}

// NewResolver builds a resolver over the given membership source.
func NewResolver(groups Membership) *Resolver {
	return &Resolver{groups: groups}
}

// Authorize implements tree.Authorizer.
func (r *Resolver) Authorize(principal tree.ID, meta tree.AccessMeta, acc tree.Access) bool {
	if principal == 0 {
		return false
	}

	if principal == meta.Owner {
		return true
	}

	var grants tree.GrantSet
	switch acc {
	case tree.AccessRead:
		grants = meta.ReadGroups
	case tree.AccessWrite:
		grants = meta.WriteGroups
	default:
		return false
	}

	for groupID := range grants {
		if r.groups.IsMember(groupID, principal) {
			return true
		}
	}
	return false
}
