// See the file LICENSE for licensing terms.

package kv

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/holiman/bloomfilter/v2"

	"github.com/icevm/execution-core/internal/stable"
)

// blockCacheBytes bounds the raw-bytes read-through cache fronting the blob
// arena; a repeated eth_getBlockByNumber/eth_getTransactionReceipt poll on
// the chain head should not re-walk the slab arena on every call.
const blockCacheBytes = 8 << 20

// blockRecord is chainstore's private index entry: blob pointers for a
// sealed block's two slab-stored segments (raw tx bytes stay in the
// mempool's tx store, not duplicated here).
type blockRecord struct {
	dataPtr     stable.BlobPtr
	receiptsPtr stable.BlobPtr
	hasReceipts bool
	bloom       *bloomfilter.Filter
}

// ChainStore is the durable home for sealed blocks and their receipts,
// backed by the slab-allocated blob arena rather than a plain Go map, so
// the chain history this engine commits actually lives in the stable
// substrate internal/stable builds instead of process memory alone.
// Grounded on original_source's evm-db block/receipt column families,
// adapted to this engine's single blob-arena layering.
type ChainStore struct {
	blobs *stable.BlobStore

	index      map[uint64]blockRecord
	pending    map[uint64][]ReceiptLike // receipts committed before their owning block is sealed
	receiptLoc map[TxID]uint64          // tx id -> owning block number

	head     Head
	haveHead bool

	oldestKept uint64
	haveOldest bool

	blockCache    *fastcache.Cache
	receiptsCache *fastcache.Cache
}

func NewChainStore(blobs *stable.BlobStore) *ChainStore {
	return &ChainStore{
		blobs:         blobs,
		index:         make(map[uint64]blockRecord),
		pending:       make(map[uint64][]ReceiptLike),
		receiptLoc:    make(map[TxID]uint64),
		blockCache:    fastcache.New(blockCacheBytes),
		receiptsCache: fastcache.New(blockCacheBytes),
	}
}

func blockCacheKey(number uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], number)
	return k[:]
}

// PutReceipt buffers a receipt under its owning block number; the buffer
// is flushed into a single length-prefixed blob when PutBlock seals that
// block, since the producer always calls PutReceipt for every included tx
// before calling PutBlock once at the end.
func (s *ChainStore) PutReceipt(id TxID, r ReceiptLike) {
	s.pending[r.BlockNumber] = append(s.pending[r.BlockNumber], r)
	s.receiptLoc[id] = r.BlockNumber
}

func (s *ChainStore) PutBlock(b BlockData) {
	rec := blockRecord{}
	if ptr, err := s.blobs.StoreBytes(b.Encode()); err == nil {
		rec.dataPtr = ptr
	}
	if receipts := s.pending[b.Number]; len(receipts) > 0 {
		buf := encodeReceiptBundle(receipts)
		if ptr, err := s.blobs.StoreBytes(buf); err == nil {
			rec.receiptsPtr = ptr
			rec.hasReceipts = true
		}
		rec.bloom = BuildLogBloom(receipts)
		delete(s.pending, b.Number)
	}
	s.index[b.Number] = rec
}

func (s *ChainStore) SetHead(h Head) {
	s.head = h
	s.haveHead = true
}

func (s *ChainStore) Head() (Head, bool) { return s.head, s.haveHead }

func (s *ChainStore) LastBlockNumber() uint64 {
	if !s.haveHead {
		return 0
	}
	return s.head.Number
}

func (s *ChainStore) GetBlock(number uint64) (BlockData, bool) {
	rec, ok := s.index[number]
	if !ok {
		return BlockData{}, false
	}
	key := blockCacheKey(number)
	raw, found := s.blockCache.HasGet(nil, key)
	if !found {
		var err error
		raw, err = s.blobs.Read(rec.dataPtr)
		if err != nil {
			return BlockData{}, false
		}
		s.blockCache.Set(key, raw)
	}
	return DecodeBlockData(raw)
}

func (s *ChainStore) GetReceipt(id TxID) (ReceiptLike, bool) {
	num, ok := s.receiptLoc[id]
	if !ok {
		return ReceiptLike{}, false
	}
	rec, ok := s.index[num]
	if !ok || !rec.hasReceipts {
		return ReceiptLike{}, false
	}
	key := blockCacheKey(num)
	raw, found := s.receiptsCache.HasGet(nil, key)
	if !found {
		var err error
		raw, err = s.blobs.Read(rec.receiptsPtr)
		if err != nil {
			return ReceiptLike{}, false
		}
		s.receiptsCache.Set(key, raw)
	}
	for _, r := range decodeReceiptBundle(raw) {
		if r.TxID == id {
			return r, true
		}
	}
	return ReceiptLike{}, false
}

// BlockLogBloom returns the block's log bloom built at seal time, for
// internal/rpc's EthGetLogs pre-filter.
func (s *ChainStore) BlockLogBloom(number uint64) (*bloomfilter.Filter, bool) {
	rec, ok := s.index[number]
	if !ok || rec.bloom == nil {
		return nil, false
	}
	return rec.bloom, true
}

// OldestKeptBlock reports the lowest block number pruning has not yet
// removed. Call SetOldestKept as prune advances its watermark.
func (s *ChainStore) OldestKeptBlock() (uint64, bool) { return s.oldestKept, s.haveOldest }

func (s *ChainStore) SetOldestKept(number uint64) {
	s.oldestKept = number
	s.haveOldest = true
}

// BlobPointersForBlock and DeleteBlock implement the prune engine's
// BlockStore capability.
func (s *ChainStore) BlobPointersForBlock(number uint64) ([]stable.BlobPtr, bool) {
	rec, ok := s.index[number]
	if !ok {
		return nil, false
	}
	ptrs := []stable.BlobPtr{rec.dataPtr}
	if rec.hasReceipts {
		ptrs = append(ptrs, rec.receiptsPtr)
	}
	return ptrs, true
}

func (s *ChainStore) DeleteBlock(number uint64) {
	if _, ok := s.index[number]; !ok {
		return
	}
	if block, ok := s.GetBlock(number); ok {
		for _, id := range block.TxIDs {
			delete(s.receiptLoc, id)
		}
	}
	delete(s.index, number)
	key := blockCacheKey(number)
	s.blockCache.Del(key)
	s.receiptsCache.Del(key)
}

func encodeReceiptBundle(receipts []ReceiptLike) []byte {
	var buf []byte
	var lenBuf [4]byte
	for _, r := range receipts {
		enc := r.Encode()
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, enc...)
	}
	return buf
}

func decodeReceiptBundle(buf []byte) []ReceiptLike {
	var out []ReceiptLike
	for len(buf) >= 4 {
		n := int(binary.BigEndian.Uint32(buf[0:4]))
		buf = buf[4:]
		if n > len(buf) {
			break
		}
		if r, ok := DecodeReceiptLike(buf[:n]); ok {
			out = append(out, r)
		}
		buf = buf[n:]
	}
	return out
}
