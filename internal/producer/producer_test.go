// See the file LICENSE for licensing terms.

package producer

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/executor"
	"github.com/icevm/execution-core/internal/executor/refvm"
	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/mempool"
	"github.com/icevm/execution-core/internal/stable"
	"github.com/icevm/execution-core/internal/stateroot"
)

func icSyntheticRaw(to [20]byte, value *big.Int, gasLimit, nonce uint64, maxFee, maxPriority *big.Int) []byte {
	buf := make([]byte, 0, 105)
	buf = append(buf, 2)
	buf = append(buf, to[:]...)
	var v32, fee16, prio16 [32]byte
	vb := value.Bytes()
	copy(v32[32-len(vb):], vb)
	buf = append(buf, v32[:]...)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], gasLimit)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], nonce)
	buf = append(buf, u64[:]...)
	fb := maxFee.Bytes()
	copy(fee16[16-len(fb):16], fb)
	buf = append(buf, fee16[:16]...)
	pb := maxPriority.Bytes()
	copy(prio16[16-len(pb):16], pb)
	buf = append(buf, prio16[:16]...)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], 0)
	buf = append(buf, u32[:]...)
	return buf
}

func newTestProducer(t *testing.T, funded [20]byte, balance *big.Int) (*Producer, *kv.ChainStore) {
	t.Helper()
	chain := chainstate.NewChainState()
	metrics := chainstate.NewMetricsState()
	stateDB := kv.NewStateDB()

	var bal [32]byte
	b := balance.Bytes()
	copy(bal[32-len(b):], b)
	stateDB.UpsertAccount(funded, kv.AccountRecord{Balance: bal})

	registry := stable.NewRegistry()
	blobs := stable.NewBlobStore(registry.Region(stable.MemBlobArena))
	chainstore := kv.NewChainStore(blobs)

	mp := mempool.New(chain, metrics)
	exec := executor.New(refvm.New())
	nodeDB := stateroot.NewNodeDB()
	stateRoot := stateroot.NewEngine(nodeDB)
	health := &chainstate.SystemTxHealth{}

	p := &Producer{
		Chain:     chain,
		Metrics:   metrics,
		Mempool:   mp,
		Executor:  exec,
		StateDB:   stateDB,
		Engine:    stateRoot,
		Blocks:    chainstore,
		Recoverer: executor.LatestSignerRecoverer{},
		Health:    health,
	}
	return p, chainstore
}

func submitIcSynthetic(t *testing.T, p *Producer, raw []byte) kv.TxID {
	t.Helper()
	decoded, err := mempool.DecodeIcSynthetic(raw, nil, nil)
	require.NoError(t, err)
	id, err := p.Mempool.Submit(raw, decoded)
	require.NoError(t, err)
	return id
}

func TestProduceBlockExecutesReadyCandidate(t *testing.T) {
	addr := [20]byte{0xAA}
	p, chainstore := newTestProducer(t, addr, big.NewInt(1_000_000_000_000))

	raw := icSyntheticRaw(addr, big.NewInt(100), 21000, 0, big.NewInt(2_000_000_000), big.NewInt(2))
	txID := submitIcSynthetic(t, p, raw)

	block, err := p.ProduceBlock(10, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Number)
	require.Equal(t, []kv.TxID{txID}, block.TxIDs)

	_, ok := chainstore.GetBlock(1)
	require.True(t, ok)
	receipt, ok := chainstore.GetReceipt(txID)
	require.True(t, ok)
	require.Equal(t, uint64(21000), receipt.GasUsed)
}

func TestProduceBlockRespectsMaxTxs(t *testing.T) {
	addr := [20]byte{0xBB}
	p, _ := newTestProducer(t, addr, big.NewInt(1_000_000_000_000))

	for i := 0; i < 3; i++ {
		raw := icSyntheticRaw(addr, big.NewInt(1), 21000, uint64(i), big.NewInt(2_000_000_000), big.NewInt(2))
		submitIcSynthetic(t, p, raw)
	}

	block, err := p.ProduceBlock(1, 1000)
	require.NoError(t, err)
	require.Len(t, block.TxIDs, 1)
}

func TestProduceBlockSealsEmptyBlockWhenAskedDirectly(t *testing.T) {
	addr := [20]byte{0xCC}
	p, _ := newTestProducer(t, addr, big.NewInt(1_000_000_000_000))

	block, err := p.ProduceBlock(10, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Number)
	require.Empty(t, block.TxIDs)
}

func TestProduceBlockAccumulatesGasAcrossCandidates(t *testing.T) {
	addr := [20]byte{0xDD}
	p, _ := newTestProducer(t, addr, big.NewInt(1_000_000_000_000))

	for i := 0; i < 3; i++ {
		raw := icSyntheticRaw(addr, big.NewInt(1), 21000, uint64(i), big.NewInt(2_000_000_000), big.NewInt(2))
		submitIcSynthetic(t, p, raw)
	}

	block, err := p.ProduceBlock(10, 1000)
	require.NoError(t, err)
	require.Len(t, block.TxIDs, 3)

	var totalGas uint64
	for _, id := range block.TxIDs {
		r, ok := p.Blocks.(*kv.ChainStore).GetReceipt(id)
		require.True(t, ok)
		totalGas += r.GasUsed
	}
	require.Equal(t, uint64(21000*3), totalGas)
}
