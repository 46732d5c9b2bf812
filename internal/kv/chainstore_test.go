// See the file LICENSE for licensing terms.

package kv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/stable"
)

func newTestChainStore(t *testing.T) *ChainStore {
	t.Helper()
	registry := stable.NewRegistry()
	blobs := stable.NewBlobStore(registry.Region(stable.MemBlobArena))
	return NewChainStore(blobs)
}

func TestChainStoreRoundTripsBlockAndReceipts(t *testing.T) {
	s := newTestChainStore(t)

	txID := EthTxID([]byte("tx-1"))
	receipt := ReceiptLike{TxID: txID, BlockNumber: 1, TxIndex: 0, Status: 1, GasUsed: 21000}
	s.PutReceipt(txID, receipt)

	block := BlockData{Number: 1, TxIDs: []TxID{txID}}
	block.TxListHash = TxListHash(block.TxIDs)
	block.BlockHash = ComputeBlockHash(block.ParentHash, block.Number, block.Timestamp, block.TxListHash, block.StateRoot)
	s.PutBlock(block)
	s.SetHead(Head{Number: block.Number, BlockHash: block.BlockHash})

	require.Equal(t, uint64(1), s.LastBlockNumber())

	got, ok := s.GetBlock(1)
	require.True(t, ok)
	require.Equal(t, block.BlockHash, got.BlockHash)
	require.Equal(t, []TxID{txID}, got.TxIDs)

	gotReceipt, ok := s.GetReceipt(txID)
	require.True(t, ok)
	require.Equal(t, uint64(21000), gotReceipt.GasUsed)

	_, ok = s.GetBlock(2)
	require.False(t, ok)
}

func TestChainStoreMultipleReceiptsPerBlock(t *testing.T) {
	s := newTestChainStore(t)

	id1 := EthTxID([]byte("a"))
	id2 := EthTxID([]byte("b"))
	s.PutReceipt(id1, ReceiptLike{TxID: id1, BlockNumber: 5, GasUsed: 100})
	s.PutReceipt(id2, ReceiptLike{TxID: id2, BlockNumber: 5, GasUsed: 200})

	block := BlockData{Number: 5, TxIDs: []TxID{id1, id2}}
	s.PutBlock(block)

	r1, ok := s.GetReceipt(id1)
	require.True(t, ok)
	require.Equal(t, uint64(100), r1.GasUsed)

	r2, ok := s.GetReceipt(id2)
	require.True(t, ok)
	require.Equal(t, uint64(200), r2.GasUsed)
}

func TestChainStoreDeleteBlockClearsReceiptIndex(t *testing.T) {
	s := newTestChainStore(t)

	txID := EthTxID([]byte("to-delete"))
	s.PutReceipt(txID, ReceiptLike{TxID: txID, BlockNumber: 3})
	block := BlockData{Number: 3, TxIDs: []TxID{txID}}
	s.PutBlock(block)

	_, ok := s.GetReceipt(txID)
	require.True(t, ok)

	s.DeleteBlock(3)

	_, ok = s.GetBlock(3)
	require.False(t, ok)
	_, ok = s.GetReceipt(txID)
	require.False(t, ok)
}

func TestChainStoreBlobPointersForBlock(t *testing.T) {
	s := newTestChainStore(t)

	txID := EthTxID([]byte("ptrs"))
	s.PutReceipt(txID, ReceiptLike{TxID: txID, BlockNumber: 7})
	s.PutBlock(BlockData{Number: 7, TxIDs: []TxID{txID}})

	ptrs, ok := s.BlobPointersForBlock(7)
	require.True(t, ok)
	require.Len(t, ptrs, 2)

	_, ok = s.BlobPointersForBlock(8)
	require.False(t, ok)
}

func TestChainStoreOldestKept(t *testing.T) {
	s := newTestChainStore(t)

	_, ok := s.OldestKeptBlock()
	require.False(t, ok)

	s.SetOldestKept(42)
	n, ok := s.OldestKeptBlock()
	require.True(t, ok)
	require.Equal(t, uint64(42), n)
}
