package tree

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDHexRoundtrip(t *testing.T) {
	for _, id := range []ID{1, 0xdeadbeef, 1<<64 - 1} {
		parsed, err := ParseID(id.Hex())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	}

	_, err := ParseID("")
	require.Error(t, err)
	_, err = ParseID("not-hex-zzz")
	require.Error(t, err)
}

func TestIDJSON(t *testing.T) {
	data, err := json.Marshal(ID(0xbeef))
	require.NoError(t, err)
	require.Equal(t, `"beef"`, string(data))

	var id ID
	require.NoError(t, json.Unmarshal([]byte(`"beef"`), &id))
	require.Equal(t, ID(0xbeef), id)

	// Legacy integer bodies still parse.
	require.NoError(t, json.Unmarshal([]byte(`48879`), &id))
	require.Equal(t, ID(0xbeef), id)

	require.Error(t, json.Unmarshal([]byte(`true`), &id))
}

func TestAllocatorRespectsInUse(t *testing.T) {
	var alloc Allocator
	used := map[ID]struct{}{}

	for i := 0; i < 100; i++ {
		id, err := alloc.Allocate(func(id ID) bool {
			_, taken := used[id]
			return taken
		})
		require.NoError(t, err)
		require.NotZero(t, id)

		_, dup := used[id]
		require.False(t, dup)
		used[id] = struct{}{}
	}
}

func TestAllocatorExhaustion(t *testing.T) {
	var alloc Allocator
	_, err := alloc.Allocate(func(ID) bool { return true })
	require.True(t, IsCode(err, ErrIdExhaustion))
}

func TestAllocatorConcurrent(t *testing.T) {
	var alloc Allocator
	var mu sync.Mutex
	used := map[ID]struct{}{}

	const workers = 32
	ids := make([]ID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := alloc.Allocate(func(id ID) bool {
				mu.Lock()
				defer mu.Unlock()
				_, taken := used[id]
				if !taken {
					used[id] = struct{}{}
				}
				return taken
			})
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := map[ID]struct{}{}
	for _, id := range ids {
		require.NotZero(t, id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
