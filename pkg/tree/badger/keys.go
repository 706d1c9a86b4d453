package badger

import "github.com/atticfs/attic/pkg/tree"

// Key schema
// ==========
//
// All keys are namespaced with a short prefix so the data types cannot
// collide and each can be range-scanned on its own:
//
//	d:<id>              directory record (JSON)
//	f:<id>              file record (JSON)
//	c:<parent>:<name>   child index, value is the child's id
//	u:<id>              id tombstone, value empty
//
// Ids are rendered in their canonical hex form (no zero padding, so keys
// are variable-width; the ":" separator keeps prefix scans unambiguous) and
// the database stays inspectable with badger's CLI tools.
// Tombstones are written on allocation and never deleted, so an id can
// never be reissued even after its node is removed.

const (
	dirPrefix   = "d:"
	filePrefix  = "f:"
	childPrefix = "c:"
	usedPrefix  = "u:"
)

func keyDir(id tree.ID) []byte {
	return []byte(dirPrefix + id.Hex())
}

func keyFile(id tree.ID) []byte {
	return []byte(filePrefix + id.Hex())
}

func keyChild(parent tree.ID, name string) []byte {
	return []byte(childPrefix + parent.Hex() + ":" + name)
}

// keyChildScan returns the prefix covering every child entry of a parent.
func keyChildScan(parent tree.ID) []byte {
	return []byte(childPrefix + parent.Hex() + ":")
}

func keyUsed(id tree.ID) []byte {
	return []byte(usedPrefix + id.Hex())
}
