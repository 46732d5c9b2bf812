// See the file LICENSE for licensing terms.

package engine

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/kv"
)

func icSyntheticRaw(to [20]byte, value *big.Int, gasLimit, nonce uint64, maxFee, maxPriority *big.Int, data []byte) []byte {
	buf := make([]byte, 0, 105+len(data))
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
	binary.BigEndian.PutUint32(u32[:], uint32(len(data)))
	buf = append(buf, u32[:]...)
	buf = append(buf, data...)
	return buf
}

func newTestEngine(t *testing.T, funded [20]byte, balance *big.Int) *Engine {
	t.Helper()
	e, err := New([]GenesisBalance{{Address: funded, Amount: balance}})
	require.NoError(t, err)
	return e
}

func TestNewRejectsBadGenesis(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	addr := [20]byte{1}
	_, err = New([]GenesisBalance{{Address: addr, Amount: big.NewInt(1)}, {Address: addr, Amount: big.NewInt(2)}})
	require.Error(t, err)

	_, err = New([]GenesisBalance{{Address: addr, Amount: big.NewInt(0)}})
	require.Error(t, err)
}

func TestSubmitAndProduceBlock(t *testing.T) {
	addr := [20]byte{0xAA}
	e := newTestEngine(t, addr, big.NewInt(1_000_000_000_000))

	raw := icSyntheticRaw(addr, big.NewInt(100), 21000, 0, big.NewInt(2_000_000_000), big.NewInt(2), nil)
	txID, err := e.SubmitTxIn(raw, kv.IcSynthetic, nil, nil)
	require.NoError(t, err)

	res, err := e.ProduceBlock(10, 1000)
	require.NoError(t, err)
	require.False(t, res.NoOp)
	require.Equal(t, uint64(1), res.Number)
	require.Equal(t, uint32(1), res.Txs)
	require.Equal(t, uint64(21000), res.GasUsed)

	block, status, _ := e.GetBlock(1)
	require.Equal(t, Found, status)
	require.Equal(t, uint64(1), block.Number)

	receipt, status, _ := e.GetReceipt(txID)
	require.Equal(t, Found, status)
	require.Equal(t, uint8(1), receipt.Status)
}

func TestProduceBlockNoOpWhenEmpty(t *testing.T) {
	addr := [20]byte{0xBB}
	e := newTestEngine(t, addr, big.NewInt(1_000_000_000_000))

	res, err := e.ProduceBlock(10, 1000)
	require.NoError(t, err)
	require.True(t, res.NoOp)
	require.Equal(t, uint64(0), e.Chain.LastBlockNumber)
}

func TestWritesRejectedWhenOpsCritical(t *testing.T) {
	addr := [20]byte{0xCC}
	e := newTestEngine(t, addr, big.NewInt(1_000_000_000_000))
	e.SetOpsConfig(chainstate.OpsConfig{})
	e.Ops.State.Mode = chainstate.OpsCritical

	raw := icSyntheticRaw(addr, big.NewInt(1), 21000, 0, big.NewInt(2_000_000_000), big.NewInt(2), nil)
	_, err := e.SubmitTxIn(raw, kv.IcSynthetic, nil, nil)
	require.Error(t, err)

	_, err = e.ProduceBlock(10, 1000)
	require.Error(t, err)
}

func TestEthQueriesAfterProduce(t *testing.T) {
	addr := [20]byte{0xDD}
	e := newTestEngine(t, addr, big.NewInt(5_000))

	raw := icSyntheticRaw(addr, big.NewInt(0), 21000, 0, big.NewInt(2_000_000_000), big.NewInt(2), nil)
	_, err := e.SubmitTxIn(raw, kv.IcSynthetic, nil, nil)
	require.NoError(t, err)

	_, err = e.ProduceBlock(10, 1000)
	require.NoError(t, err)

	require.Equal(t, uint64(1), e.EthBlockNumber())
	require.Equal(t, uint64(chainstate.ChainID), e.EthChainID())

	balance := e.EthGetBalance(addr)
	require.Equal(t, int64(5_000), balance.Int64())
}
