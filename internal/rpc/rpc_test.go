// See the file LICENSE for licensing terms.

package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/stable"
)

func newTestChainStore(t *testing.T) *kv.ChainStore {
	t.Helper()
	registry := stable.NewRegistry()
	blobs := stable.NewBlobStore(registry.Region(stable.MemBlobArena))
	return kv.NewChainStore(blobs)
}

func sealBlockWithLog(t *testing.T, chain *kv.ChainStore, number uint64, addr [20]byte, topic0 [32]byte) kv.TxID {
	t.Helper()
	txID := kv.EthTxID([]byte{byte(number)})
	receipt := kv.ReceiptLike{
		TxID:        txID,
		BlockNumber: number,
		Status:      1,
		GasUsed:     21000,
		Logs:        []kv.LogEntry{{Address: addr, Topics: [][32]byte{topic0}}},
	}
	chain.PutReceipt(txID, receipt)
	block := kv.BlockData{Number: number, TxIDs: []kv.TxID{txID}}
	chain.PutBlock(block)
	chain.SetHead(kv.Head{Number: number})
	return txID
}

func TestEthBlockNumberAndGetBlockByNumber(t *testing.T) {
	chain := newTestChainStore(t)
	sealBlockWithLog(t, chain, 1, [20]byte{1}, [32]byte{1})

	require.Equal(t, uint64(1), EthBlockNumber(chain))

	block, ok := EthGetBlockByNumber(chain, 1, false)
	require.True(t, ok)
	require.Equal(t, uint64(1), block.Number)

	_, ok = EthGetBlockByNumber(chain, 2, false)
	require.False(t, ok)
}

func TestEthGetTransactionReceipt(t *testing.T) {
	chain := newTestChainStore(t)
	txID := sealBlockWithLog(t, chain, 1, [20]byte{1}, [32]byte{1})

	r, ok := EthGetTransactionReceipt(chain, txID)
	require.True(t, ok)
	require.Equal(t, uint64(21000), r.GasUsed)

	_, ok = EthGetTransactionReceipt(chain, kv.EthTxID([]byte("missing")))
	require.False(t, ok)
}

func TestEthGetBalanceAndCode(t *testing.T) {
	accounts := kv.NewStateDB()
	addr := [20]byte{9}
	var balance [32]byte
	balance[31] = 100
	accounts.UpsertAccount(addr, kv.AccountRecord{Balance: balance})

	got := EthGetBalance(accounts, addr)
	require.Equal(t, int64(100), got.Int64())

	other := [20]byte{10}
	require.Equal(t, int64(0), EthGetBalance(accounts, other).Int64())
	require.Nil(t, EthGetCode(accounts, other))
}

func TestEthGetLogsRejectsInvertedAndOversizedRange(t *testing.T) {
	chain := newTestChainStore(t)

	_, err := EthGetLogs(chain, LogFilter{FromBlock: 10, ToBlock: 5})
	require.Error(t, err)

	_, err = EthGetLogs(chain, LogFilter{FromBlock: 0, ToBlock: MaxBlockSpan})
	require.Error(t, err)
}

func TestEthGetLogsMatchesAddressAndTopic(t *testing.T) {
	chain := newTestChainStore(t)
	addr := [20]byte{7}
	topic0 := [32]byte{8}
	sealBlockWithLog(t, chain, 1, addr, topic0)
	sealBlockWithLog(t, chain, 2, [20]byte{99}, [32]byte{99})

	results, err := EthGetLogs(chain, LogFilter{FromBlock: 1, ToBlock: 2, Address: &addr})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(1), results[0].BlockNumber)

	results, err = EthGetLogs(chain, LogFilter{FromBlock: 1, ToBlock: 2, Topic0: &topic0})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestEthGetLogsClipsFromOldestKept(t *testing.T) {
	chain := newTestChainStore(t)
	addr := [20]byte{7}
	sealBlockWithLog(t, chain, 1, addr, [32]byte{1})
	sealBlockWithLog(t, chain, 2, addr, [32]byte{1})
	chain.SetOldestKept(2)

	results, err := EthGetLogs(chain, LogFilter{FromBlock: 1, ToBlock: 2, Address: &addr})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(2), results[0].BlockNumber)
}

func TestEthGetLogsClipsLimit(t *testing.T) {
	chain := newTestChainStore(t)
	addr := [20]byte{7}
	for n := uint64(1); n <= 3; n++ {
		sealBlockWithLog(t, chain, n, addr, [32]byte{1})
	}

	results, err := EthGetLogs(chain, LogFilter{FromBlock: 1, ToBlock: 3, Address: &addr, Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
}
