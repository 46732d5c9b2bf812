// See the file LICENSE for licensing terms.

package kv

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	MaxTxsPerBlock       = 1024
	MaxBlockDataSize     = 8 + 32 + 32 + 8 + 4 + MaxTxsPerBlock*32 + 32 + 32
)

// BlockData is the immutable record committed for each produced block.
type BlockData struct {
	Number      uint64
	ParentHash  [32]byte
	BlockHash   [32]byte
	Timestamp   uint64
	TxIDs       []TxID
	TxListHash  [32]byte
	StateRoot   [32]byte
}

// TxListHash is keccak(0x00 || concat(tx_ids)), domain-separated from
// BlockHash so the two cannot be confused.
func TxListHash(txIDs []TxID) [32]byte {
	buf := make([]byte, 0, 1+len(txIDs)*32)
	buf = append(buf, 0x00)
	for _, id := range txIDs {
		buf = append(buf, id[:]...)
	}
	return crypto.Keccak256Hash(buf)
}

// ComputeBlockHash is keccak(0x01 || parent_hash || number_be || timestamp_be
// || tx_list_hash || state_root).
func ComputeBlockHash(parentHash [32]byte, number, timestamp uint64, txListHash, stateRoot [32]byte) [32]byte {
	buf := make([]byte, 0, 1+32+8+8+32+32)
	buf = append(buf, 0x01)
	buf = append(buf, parentHash[:]...)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], number)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], timestamp)
	buf = append(buf, u64[:]...)
	buf = append(buf, txListHash[:]...)
	buf = append(buf, stateRoot[:]...)
	return crypto.Keccak256Hash(buf)
}

func (b BlockData) Encode() []byte {
	buf := make([]byte, 0, 64+len(b.TxIDs)*32)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], b.Number)
	buf = append(buf, u64[:]...)
	buf = append(buf, b.ParentHash[:]...)
	buf = append(buf, b.BlockHash[:]...)
	binary.BigEndian.PutUint64(u64[:], b.Timestamp)
	buf = append(buf, u64[:]...)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(b.TxIDs)))
	buf = append(buf, u32[:]...)
	for _, id := range b.TxIDs {
		buf = append(buf, id[:]...)
	}
	buf = append(buf, b.TxListHash[:]...)
	buf = append(buf, b.StateRoot[:]...)
	return buf
}

func DecodeBlockData(b []byte) (BlockData, bool) {
	if len(b) > MaxBlockDataSize {
		return BlockData{}, false
	}
	const head = 8 + 32 + 32 + 8 + 4
	if len(b) < head {
		return BlockData{}, false
	}
	var bd BlockData
	off := 0
	bd.Number = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	copy(bd.ParentHash[:], b[off:off+32])
	off += 32
	copy(bd.BlockHash[:], b[off:off+32])
	off += 32
	bd.Timestamp = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n > MaxTxsPerBlock || len(b) < off+n*32+64 {
		return BlockData{}, false
	}
	for i := 0; i < n; i++ {
		var id TxID
		copy(id[:], b[off:off+32])
		bd.TxIDs = append(bd.TxIDs, id)
		off += 32
	}
	copy(bd.TxListHash[:], b[off:off+32])
	off += 32
	copy(bd.StateRoot[:], b[off:off+32])
	return bd, true
}

// Head is the chain tip: {number, block_hash, timestamp}, fixed 48-byte
// layout (8 + 32 + 8).
type Head struct {
	Number    uint64
	BlockHash [32]byte
	Timestamp uint64
}

const HeadEncodedLen = 48

func (h Head) Encode() []byte {
	buf := make([]byte, HeadEncodedLen)
	binary.BigEndian.PutUint64(buf[0:8], h.Number)
	copy(buf[8:40], h.BlockHash[:])
	binary.BigEndian.PutUint64(buf[40:48], h.Timestamp)
	return buf
}

func DecodeHead(b []byte) (Head, bool) {
	if len(b) != HeadEncodedLen {
		return Head{}, false
	}
	var h Head
	h.Number = binary.BigEndian.Uint64(b[0:8])
	copy(h.BlockHash[:], b[8:40])
	h.Timestamp = binary.BigEndian.Uint64(b[40:48])
	return h, true
}
