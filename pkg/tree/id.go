package tree

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// ID identifies a node, user or group. IDs are nonzero 64-bit values,
// unique for the lifetime of the store that issued them, and are rendered
// as lowercase hexadecimal strings on the wire (URL paths and JSON bodies).
//
// Zero is the reserved sentinel: it is never allocated and marks the absent
// parent of a root directory.
type ID uint64

// Hex returns the canonical wire encoding of the id.
func (id ID) Hex() string {
	return strconv.FormatUint(uint64(id), 16)
}

func (id ID) String() string {
	return id.Hex()
}

// ParseID parses the canonical hexadecimal wire encoding.
func ParseID(s string) (ID, error) {
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(v), nil
}

// MarshalJSON renders the id as a hex string. Legacy clients sent decimal
// integers in bodies; the hex string is the canonical encoding for all new
// work and the only one this server produces.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Hex())
}

// UnmarshalJSON accepts the canonical hex string and, for compatibility with
// old request bodies, a plain JSON integer.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParseID(s)
		if perr != nil {
			return perr
		}
		*id = parsed
		return nil
	}

	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a hex string or integer")
	}
	*id = ID(n)
	return nil
}

// maxAllocateAttempts bounds the collision-retry loop. With 64-bit random
// ids the loop terminates on the first draw for any realistic store size;
// the bound exists so a broken inUse predicate cannot hang a request.
const maxAllocateAttempts = 64

// Allocator issues fresh ids from a cryptographic random source.
//
// Allocation is collision-checked rather than sequential: the caller supplies
// an inUse predicate covering every id ever issued by the owning store, and
// the allocator redraws until it finds a free nonzero value. The mutex makes
// the draw-check-reserve sequence atomic, so two racing allocations can never
// observe the same id as free.
type Allocator struct {
	mu sync.Mutex
}

// Allocate returns a fresh id that is nonzero and for which inUse reports
// false. The caller must record the id as used before releasing its own
// store lock; the allocator's mutex only serializes concurrent draws.
//
// Returns an IdExhaustion error if no free id can be found, which indicates
// either a broken predicate or a store holding a meaningful fraction of the
// 64-bit id space.
func (a *Allocator) Allocate(inUse func(ID) bool) (ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var buf [8]byte
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, &StoreError{
				Code:    ErrIdExhaustion,
				Message: fmt.Sprintf("random source failed: %v", err),
			}
		}

		id := ID(binary.BigEndian.Uint64(buf[:]))
		if id == 0 || (inUse != nil && inUse(id)) {
			continue
		}
		return id, nil
	}

	return 0, &StoreError{
		Code:    ErrIdExhaustion,
		Message: "could not allocate a fresh id",
	}
}
