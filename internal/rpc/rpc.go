// See the file LICENSE for licensing terms.

// Package rpc implements the read-only RPC-shaped query helpers of spec
// section 6's "RPC-style facade": eth_chainId, eth_blockNumber,
// eth_getBlockByNumber, eth_getTransactionByHash, eth_getTransactionReceipt,
// eth_getBalance, eth_getCode, and eth_getLogs. These are plain Go
// functions over already-committed state; dispatch/DTO shaping for an
// actual JSON-RPC or Candid surface remains an external collaborator's
// concern, per spec.md section 1.
package rpc

import (
	"math/big"

	"github.com/holiman/bloomfilter/v2"

	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/ethapi"
	"github.com/icevm/execution-core/internal/kv"
)

// Bounds for eth_getLogs, fixed by spec section 6.
const (
	MaxBlockSpan = 5000
	DefaultLimit = 200
	MaxLimit     = 2000
)

// ChainReader is the narrow read surface this package needs over
// committed chain history.
type ChainReader interface {
	LastBlockNumber() uint64
	GetBlock(number uint64) (kv.BlockData, bool)
	GetReceipt(txID kv.TxID) (kv.ReceiptLike, bool)
	OldestKeptBlock() (uint64, bool)
}

// BloomReader is an optional capability a ChainReader may also implement,
// letting EthGetLogs skip reading a block's receipts entirely when its
// log bloom rules out a match. Absent this, EthGetLogs falls back to a
// full per-block receipt scan.
type BloomReader interface {
	BlockLogBloom(number uint64) (*bloomfilter.Filter, bool)
}

// TxReader is the narrow read surface this package needs over stored
// transaction envelopes, satisfied by *mempool.Mempool.
type TxReader interface {
	StoredTx(id kv.TxID) (kv.StoredTx, bool)
	Loc(id kv.TxID) (kv.TxLoc, bool)
}

// AccountReader is the narrow read surface this package needs over
// committed account/code state, satisfied by *kv.StateDB.
type AccountReader interface {
	Basic(addr [20]byte) (*kv.AccountInfo, bool)
	CodeByHash(codeHash [32]byte) []byte
}

// EthChainID returns the fixed chain id this engine presents.
func EthChainID(chainID uint64) uint64 { return chainID }

// EthBlockNumber returns the number of the most recently sealed block.
func EthBlockNumber(chain ChainReader) uint64 { return chain.LastBlockNumber() }

// EthGetBlockByNumber looks up a sealed block by number. fullTx is
// accepted for interface parity with eth_getBlockByNumber's shape but has
// no effect here: BlockData already carries only tx ids, never full
// transaction bodies, so the distinction is a caller-side concern once a
// dispatch layer fills in transaction details from EthGetTransactionByHash.
func EthGetBlockByNumber(chain ChainReader, number uint64, fullTx bool) (kv.BlockData, bool) {
	_ = fullTx
	return chain.GetBlock(number)
}

// EthGetTransactionByHash returns the stored envelope for a tx id,
// regardless of whether it has been included, is still queued, or was
// dropped (the caller inspects TxLoc to tell which).
func EthGetTransactionByHash(txs TxReader, id kv.TxID) (kv.StoredTx, kv.TxLoc, bool) {
	stored, ok := txs.StoredTx(id)
	if !ok {
		return kv.StoredTx{}, kv.TxLoc{}, false
	}
	loc, _ := txs.Loc(id)
	return stored, loc, true
}

// EthGetTransactionReceipt returns the committed receipt for an included
// tx id, or false if it was never included (still pending, dropped, or
// unknown).
func EthGetTransactionReceipt(chain ChainReader, id kv.TxID) (kv.ReceiptLike, bool) {
	return chain.GetReceipt(id)
}

// EthGetBalance returns an account's committed balance, or zero for an
// address that has never been touched.
func EthGetBalance(accounts AccountReader, addr [20]byte) *big.Int {
	info, ok := accounts.Basic(addr)
	if !ok {
		return new(big.Int)
	}
	return ethapi.BigMax(info.Balance, new(big.Int))
}

// EthGetCode returns an account's deployed bytecode, or nil for an EOA or
// unknown address.
func EthGetCode(accounts AccountReader, addr [20]byte) []byte {
	info, ok := accounts.Basic(addr)
	if !ok {
		return nil
	}
	return accounts.CodeByHash(info.CodeHash)
}

// LogFilter selects a block range and optional address/topic0 match for
// EthGetLogs. topic1+ is explicitly unsupported per spec section 6.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Address   *[20]byte
	Topic0    *[32]byte
	Limit     uint32
}

// LogResult pairs a matched log with its originating block/tx context.
type LogResult struct {
	BlockNumber uint64
	TxID        kv.TxID
	TxIndex     uint32
	Log         kv.LogEntry
}

// EthGetLogs scans receipts in [FromBlock, ToBlock] for logs matching the
// filter, clipping silently to OldestKeptBlock when the range reaches
// into pruned history per spec.md's stated choice (section 9, Open
// Questions), and rejecting spans wider than MaxBlockSpan outright
// without touching state, per spec section 4's log-filter-bounds
// invariant.
func EthGetLogs(chain ChainReader, filter LogFilter) ([]LogResult, error) {
	from, to := filter.FromBlock, filter.ToBlock
	if to < from {
		return nil, errs.New(errs.InvalidArgument, "to_block precedes from_block")
	}
	if to-from+1 > MaxBlockSpan {
		return nil, errs.New(errs.RangeTooLarge, "block span exceeds MAX_BLOCK_SPAN")
	}

	limit := filter.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if oldest, ok := chain.OldestKeptBlock(); ok && from < oldest {
		from = oldest
	}

	bloomReader, _ := chain.(BloomReader)

	var out []LogResult
	for n := from; n <= to; n++ {
		if bloomReader != nil {
			if bloom, ok := bloomReader.BlockLogBloom(n); ok && !BlockMayMatch(bloom, filter) {
				continue
			}
		}
		block, ok := chain.GetBlock(n)
		if !ok {
			continue
		}
		for _, txID := range block.TxIDs {
			receipt, ok := chain.GetReceipt(txID)
			if !ok {
				continue
			}
			for _, l := range receipt.Logs {
				if !logMatches(l, filter) {
					continue
				}
				out = append(out, LogResult{BlockNumber: n, TxID: txID, TxIndex: receipt.TxIndex, Log: l})
				if uint32(len(out)) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func logMatches(l kv.LogEntry, filter LogFilter) bool {
	if filter.Address != nil && l.Address != *filter.Address {
		return false
	}
	if filter.Topic0 != nil {
		if len(l.Topics) == 0 || l.Topics[0] != *filter.Topic0 {
			return false
		}
	}
	return true
}
