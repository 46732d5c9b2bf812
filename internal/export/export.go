// See the file LICENSE for licensing terms.

// Package export implements export_blocks, spec section 4.8: a
// cursor-resumable byte stream over committed blocks so a caller can page
// through chain history in bounded chunks without the engine ever holding
// a whole-chain snapshot in memory at once.
package export

import (
	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/kv"
)

// Per-call byte/block caps. Neither spec.md nor original_source fixes
// these; they are engine-chosen defaults.
const (
	MaxExportBytes  = 1 << 20 // 1 MiB per call
	MaxExportBlocks = 500
	MaxSegmentLen   = 1 << 18 // 256 KiB, bounds one block's single segment
)

// Segment identifies which of a block's three export segments a cursor
// currently points into.
type Segment uint8

const (
	SegmentBlockData Segment = iota
	SegmentReceipts
	SegmentRawTxs
	segmentCount
)

// Cursor resumes a paginated export at an exact byte offset within one
// block's segment, so a caller can stop and restart mid-segment without
// ever re-sending bytes already delivered.
type Cursor struct {
	BlockNumber uint64
	Segment     Segment
	Offset      uint64
}

// Source is the read-only capability the export engine needs: committed
// blocks, their receipts and raw tx envelopes, and the oldest block a
// prune pass has left intact.
type Source interface {
	GetBlock(number uint64) (kv.BlockData, bool)
	GetReceipt(txID kv.TxID) (kv.ReceiptLike, bool)
	GetStoredTx(txID kv.TxID) (kv.StoredTx, bool)
	OldestKeptBlock() (uint64, bool)
	LastBlockNumber() uint64
}

// Chunk is one unit of streamed export output.
type Chunk struct {
	BlockNumber uint64
	Segment     Segment
	Data        []byte
}

// Export streams from cursor (nil means "from genesis, segment 0, offset
// 0") up to maxBytes, returning the chunks produced and the cursor to
// resume from (nil once every block through LastBlockNumber has been
// fully emitted). A cursor naming a block number below OldestKeptBlock
// returns an errs.Pruned error rather than silently skipping forward, since the
// caller's view of history is no longer reconstructable from that point.
func Export(src Source, cursor *Cursor, maxBytes uint32) ([]Chunk, *Cursor, error) {
	if maxBytes == 0 || maxBytes > MaxExportBytes {
		maxBytes = MaxExportBytes
	}
	cur := Cursor{}
	if cursor != nil {
		cur = *cursor
	}

	if oldest, ok := src.OldestKeptBlock(); ok && cur.BlockNumber < oldest {
		return nil, nil, errs.New(errs.Pruned, "requested export cursor precedes the oldest kept block")
	}

	var chunks []Chunk
	budget := int(maxBytes)
	blocksEmitted := 0

	for cur.BlockNumber <= src.LastBlockNumber() && budget > 0 && blocksEmitted < MaxExportBlocks {
		block, ok := src.GetBlock(cur.BlockNumber)
		if !ok {
			cur = Cursor{BlockNumber: cur.BlockNumber + 1}
			continue
		}

		segBytes := segmentBytes(src, block, cur.Segment)
		if cur.Offset > uint64(len(segBytes)) {
			cur.Offset = uint64(len(segBytes))
		}
		remaining := segBytes[cur.Offset:]
		if len(remaining) > MaxSegmentLen {
			remaining = remaining[:MaxSegmentLen]
		}

		take := len(remaining)
		if take > budget {
			take = budget
		}
		// Emit a chunk even when take == 0, so an empty segment (no logs,
		// no receipts) still produces a zero-length marker for that
		// block/segment rather than being silently skipped.
		chunks = append(chunks, Chunk{BlockNumber: cur.BlockNumber, Segment: cur.Segment, Data: append([]byte{}, remaining[:take]...)})
		budget -= take
		cur.Offset += uint64(take)

		if cur.Offset < uint64(len(segBytes)) {
			break // budget exhausted mid-segment; resume here next call
		}

		cur.Offset = 0
		cur.Segment++
		if cur.Segment >= segmentCount {
			cur.Segment = SegmentBlockData
			blocksEmitted++
			cur.BlockNumber++
		}
	}

	if cur.BlockNumber > src.LastBlockNumber() {
		return chunks, nil, nil
	}
	return chunks, &cur, nil
}

func segmentBytes(src Source, block kv.BlockData, seg Segment) []byte {
	switch seg {
	case SegmentBlockData:
		return block.Encode()
	case SegmentReceipts:
		var buf []byte
		for _, id := range block.TxIDs {
			r, ok := src.GetReceipt(id)
			if !ok {
				r = kv.EmptyReceipt()
			}
			buf = append(buf, r.Encode()...)
		}
		return buf
	case SegmentRawTxs:
		var buf []byte
		for _, id := range block.TxIDs {
			tx, ok := src.GetStoredTx(id)
			if !ok {
				continue
			}
			buf = append(buf, tx.Raw...)
		}
		return buf
	default:
		return nil
	}
}
