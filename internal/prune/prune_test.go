// See the file LICENSE for licensing terms.

package prune

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/stable"
)

type fakeBlocks struct {
	ptrs map[uint64][]stable.BlobPtr
}

func (f *fakeBlocks) BlobPointersForBlock(n uint64) ([]stable.BlobPtr, bool) {
	p, ok := f.ptrs[n]
	return p, ok
}

func (f *fakeBlocks) DeleteBlock(n uint64) { delete(f.ptrs, n) }

func TestPruneTickQuarantineThenFree(t *testing.T) {
	reg := stable.NewRegistry()
	region := reg.Region(stable.MemBlobArena)
	blobs := stable.NewBlobStore(region)

	ptr, err := blobs.StoreBytes([]byte("block-0-payload"))
	require.NoError(t, err)

	blocks := &fakeBlocks{ptrs: map[uint64][]stable.BlobPtr{0: {ptr}}}
	engine := NewEngine(blocks, blobs)
	state := chainstate.NewPruneState()

	engine.Tick(state, 1, 10)

	before, ok := state.PrunedBefore()
	require.True(t, ok)
	require.Equal(t, uint64(1), before)
	require.Len(t, engine.Journal.pendingFree, 0)

	_, exists := blocks.ptrs[0]
	require.False(t, exists)
}

func TestRetainCutoff(t *testing.T) {
	policy := chainstate.DefaultPrunePolicy()
	policy.RetainBlocks = 100
	require.Equal(t, uint64(0), RetainCutoff(policy, 50))
	require.Equal(t, uint64(900), RetainCutoff(policy, 1000))
}
