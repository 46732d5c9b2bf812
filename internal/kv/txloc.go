// See the file LICENSE for licensing terms.

package kv

import "encoding/binary"

// TxLocKind is the lifecycle state of a stored transaction.
type TxLocKind uint8

const (
	Queued   TxLocKind = 0
	Included TxLocKind = 1
	Dropped  TxLocKind = 2
)

// DropCode classifies why a tx moved to TxLoc::Dropped.
type DropCode uint8

const (
	DropDecode       DropCode = 0
	DropExec         DropCode = 1
	DropInvalidFee   DropCode = 2
	DropReplaced     DropCode = 3
	DropPruned       DropCode = 4
)

// TxLoc is the lifecycle record for a live tx_id: exactly one of its
// variants holds. Queued carries the admission sequence used for tie
// breaking and cursor paging; Included is permanent until pruned; Dropped
// lives in a bounded ring.
type TxLoc struct {
	Kind        TxLocKind
	Seq         uint64 // valid when Kind == Queued
	BlockNumber uint64 // valid when Kind == Included
	TxIndex     uint32 // valid when Kind == Included
	DropCode    DropCode // valid when Kind == Dropped
}

const TxLocEncodedLen = 1 + 8 + 8 + 4 + 1

// Encode lays TxLoc out as a fixed 22-byte record: kind(1) seq(8)
// block_number(8) tx_index(4) drop_code(1), all big-endian, unused fields
// zeroed for the inactive variant.
func (t TxLoc) Encode() []byte {
	buf := make([]byte, TxLocEncodedLen)
	buf[0] = byte(t.Kind)
	binary.BigEndian.PutUint64(buf[1:9], t.Seq)
	binary.BigEndian.PutUint64(buf[9:17], t.BlockNumber)
	binary.BigEndian.PutUint32(buf[17:21], t.TxIndex)
	buf[21] = byte(t.DropCode)
	return buf
}

func DecodeTxLoc(b []byte) (TxLoc, bool) {
	if len(b) != TxLocEncodedLen {
		return TxLoc{}, false
	}
	return TxLoc{
		Kind:        TxLocKind(b[0]),
		Seq:         binary.BigEndian.Uint64(b[1:9]),
		BlockNumber: binary.BigEndian.Uint64(b[9:17]),
		TxIndex:     binary.BigEndian.Uint32(b[17:21]),
		DropCode:    DropCode(b[21]),
	}, true
}

func QueuedLoc(seq uint64) TxLoc { return TxLoc{Kind: Queued, Seq: seq} }

func IncludedLoc(blockNumber uint64, txIndex uint32) TxLoc {
	return TxLoc{Kind: Included, BlockNumber: blockNumber, TxIndex: txIndex}
}

func DroppedLoc(code DropCode) TxLoc { return TxLoc{Kind: Dropped, DropCode: code} }
