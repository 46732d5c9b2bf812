// See the file LICENSE for licensing terms.

package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/kv"
)

// fakeSource is a minimal in-memory Source for exercising Export's cursor
// arithmetic without any of the persistence substrate.
type fakeSource struct {
	blocks     map[uint64]kv.BlockData
	receipts   map[kv.TxID]kv.ReceiptLike
	storedTxs  map[kv.TxID]kv.StoredTx
	oldestKept uint64
	haveOldest bool
	last       uint64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		blocks:    make(map[uint64]kv.BlockData),
		receipts:  make(map[kv.TxID]kv.ReceiptLike),
		storedTxs: make(map[kv.TxID]kv.StoredTx),
	}
}

func (f *fakeSource) GetBlock(number uint64) (kv.BlockData, bool) {
	b, ok := f.blocks[number]
	return b, ok
}

func (f *fakeSource) GetReceipt(txID kv.TxID) (kv.ReceiptLike, bool) {
	r, ok := f.receipts[txID]
	return r, ok
}

func (f *fakeSource) GetStoredTx(txID kv.TxID) (kv.StoredTx, bool) {
	t, ok := f.storedTxs[txID]
	return t, ok
}

func (f *fakeSource) OldestKeptBlock() (uint64, bool) { return f.oldestKept, f.haveOldest }

func (f *fakeSource) LastBlockNumber() uint64 { return f.last }

func (f *fakeSource) addBlock(number uint64, numTxs int) {
	var txIDs []kv.TxID
	for i := 0; i < numTxs; i++ {
		var id kv.TxID
		id[0] = byte(number)
		id[1] = byte(i)
		txIDs = append(txIDs, id)
		f.receipts[id] = kv.ReceiptLike{TxID: id, BlockNumber: number, GasUsed: 21000}
		f.storedTxs[id] = kv.StoredTx{TxID: id, Raw: []byte{0xAA, 0xBB, byte(i)}}
	}
	f.blocks[number] = kv.BlockData{Number: number, TxIDs: txIDs}
	if number > f.last {
		f.last = number
	}
}

func TestExportFromGenesisDrainsEverythingInOneCall(t *testing.T) {
	src := newFakeSource()
	src.addBlock(0, 0)
	src.addBlock(1, 2)
	src.addBlock(2, 1)

	chunks, cursor, err := Export(src, nil, MaxExportBytes)
	require.NoError(t, err)
	require.Nil(t, cursor)
	require.NotEmpty(t, chunks)

	// Every block/segment combination should be represented at least once.
	seen := make(map[uint64]map[Segment]bool)
	for _, c := range chunks {
		if seen[c.BlockNumber] == nil {
			seen[c.BlockNumber] = make(map[Segment]bool)
		}
		seen[c.BlockNumber][c.Segment] = true
	}
	for n := uint64(0); n <= 2; n++ {
		require.Len(t, seen[n], int(segmentCount), "block %d", n)
	}
}

func TestExportResumesAtExactByteOffset(t *testing.T) {
	src := newFakeSource()
	src.addBlock(0, 3)
	src.addBlock(1, 1)

	// Force a tiny per-call budget so the stream must resume repeatedly.
	var cursor *Cursor
	var all []Chunk
	for i := 0; i < 1000; i++ {
		chunks, next, err := Export(src, cursor, 8)
		require.NoError(t, err)
		all = append(all, chunks...)
		if next == nil {
			break
		}
		cursor = next
	}
	require.Nil(t, cursor)

	// Reassemble each block/segment's bytes from the accumulated chunks and
	// compare against a single unbounded call.
	fullChunks, fullCursor, err := Export(src, nil, MaxExportBytes)
	require.NoError(t, err)
	require.Nil(t, fullCursor)

	reassembled := make(map[uint64]map[Segment][]byte)
	for _, c := range all {
		if reassembled[c.BlockNumber] == nil {
			reassembled[c.BlockNumber] = make(map[Segment][]byte)
		}
		reassembled[c.BlockNumber][c.Segment] = append(reassembled[c.BlockNumber][c.Segment], c.Data...)
	}
	full := make(map[uint64]map[Segment][]byte)
	for _, c := range fullChunks {
		if full[c.BlockNumber] == nil {
			full[c.BlockNumber] = make(map[Segment][]byte)
		}
		full[c.BlockNumber][c.Segment] = append(full[c.BlockNumber][c.Segment], c.Data...)
	}
	require.Equal(t, full, reassembled)
}

func TestExportRejectsCursorBeforeOldestKept(t *testing.T) {
	src := newFakeSource()
	src.addBlock(0, 0)
	src.addBlock(1, 0)
	src.addBlock(2, 0)
	src.oldestKept = 2
	src.haveOldest = true

	_, _, err := Export(src, &Cursor{BlockNumber: 1}, MaxExportBytes)
	require.Error(t, err)
}

func TestExportSkipsMissingPrunedBlockNumbers(t *testing.T) {
	src := newFakeSource()
	src.addBlock(0, 1)
	// Block 1 deliberately missing (pruned out from under a stale cursor
	// whose OldestKeptBlock check already passed).
	src.blocks[1] = kv.BlockData{}
	delete(src.blocks, 1)
	src.last = 2
	src.addBlock(2, 1)

	chunks, cursor, err := Export(src, nil, MaxExportBytes)
	require.NoError(t, err)
	require.Nil(t, cursor)

	numbers := make(map[uint64]bool)
	for _, c := range chunks {
		numbers[c.BlockNumber] = true
	}
	require.True(t, numbers[0])
	require.True(t, numbers[2])
	require.False(t, numbers[1])
}

func TestExportEmitsZeroLengthChunkForEmptySegment(t *testing.T) {
	src := newFakeSource()
	src.addBlock(0, 0) // no txs: receipts and raw-tx segments are empty

	chunks, cursor, err := Export(src, nil, MaxExportBytes)
	require.NoError(t, err)
	require.Nil(t, cursor)

	found := false
	for _, c := range chunks {
		if c.BlockNumber == 0 && c.Segment == SegmentReceipts {
			found = true
			require.Empty(t, c.Data)
		}
	}
	require.True(t, found)
}
