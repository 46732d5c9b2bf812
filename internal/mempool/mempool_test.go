// See the file LICENSE for licensing terms.

package mempool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/kv"
)

func newTestMempool() (*Mempool, *chainstate.ChainState) {
	cs := chainstate.NewChainState()
	cs.BaseFee = 1
	cs.MinPriorityFee = 1
	cs.MinGasPrice = 1
	mp := New(cs, chainstate.NewMetricsState())
	return mp, cs
}

func sender(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func dynTx(s [20]byte, nonce uint64, maxFee, prio int64) DecodedTx {
	return DecodedTx{
		Kind:                 kv.IcSynthetic,
		Sender:               s,
		Nonce:                nonce,
		MaxFeePerGas:         big.NewInt(maxFee),
		MaxPriorityFeePerGas: big.NewInt(prio),
		IsDynamicFee:         true,
		CallerPrincipal:      []byte{0xAA},
		CanisterID:           []byte{0x99},
	}
}

func TestFeeOrder(t *testing.T) {
	mp, _ := newTestMempool()

	lo := dynTx(sender(1), 0, 1_500_000_000, 1_000_000_000)
	hi := dynTx(sender(2), 0, 2_000_000_000, 1_000_000_000)

	_, err := mp.Submit([]byte{0x02, 'l', 'o'}, lo)
	require.NoError(t, err)
	_, err = mp.Submit([]byte{0x02, 'h', 'i'}, hi)
	require.NoError(t, err)

	cands := mp.ReadyCandidates(2)
	require.Len(t, cands, 2)

	first, _ := mp.StoredTx(cands[0])
	require.Equal(t, uint64(2_000_000_000), new(big.Int).SetBytes(first.MaxFeePerGas[:]).Uint64())
}

func TestReplacement(t *testing.T) {
	mp, _ := newTestMempool()
	s := sender(1)

	a := dynTx(s, 0, 2_000_000_000, 1_000_000_000)
	aID, err := mp.Submit([]byte{0x02, 'a'}, a)
	require.NoError(t, err)

	b := dynTx(s, 0, 3_000_000_000, 2_000_000_000)
	bID, err := mp.Submit([]byte{0x02, 'b'}, b)
	require.NoError(t, err)

	aLoc, ok := mp.Loc(aID)
	require.True(t, ok)
	require.Equal(t, kv.Dropped, aLoc.Kind)
	require.Equal(t, kv.DropReplaced, aLoc.DropCode)

	cands := mp.ReadyCandidates(10)
	require.Contains(t, cands, bID)
	require.NotContains(t, cands, aID)
}

func TestNonceGap(t *testing.T) {
	mp, _ := newTestMempool()
	s := sender(1)

	_, err := mp.Submit([]byte{0x02, '0'}, dynTx(s, 0, 2e9, 1e9))
	require.NoError(t, err)
	_, err = mp.Submit([]byte{0x02, '1'}, dynTx(s, 1, 2e9, 1e9))
	require.NoError(t, err)

	_, err = mp.Submit([]byte{0x02, '1', '0'}, dynTx(s, 10, 2e9, 1e9))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NonceGap))
}

func TestDuplicateTxRejected(t *testing.T) {
	mp, _ := newTestMempool()
	s := sender(1)
	raw := []byte{0x02, 'x'}
	_, err := mp.Submit(raw, dynTx(s, 0, 2e9, 1e9))
	require.NoError(t, err)

	other := dynTx(sender(2), 0, 2e9, 1e9)
	_, err = mp.Submit(raw, other)
	require.Error(t, err)
}
