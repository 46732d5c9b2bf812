// See the file LICENSE for licensing terms.

package executor

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestLatestSignerRecovererRecoversEIP1559Sender(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	chainID := big.NewInt(43114)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &want,
		Value:     big.NewInt(0),
	})
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)

	raw, err := signed.MarshalBinary()
	require.NoError(t, err)

	var r LatestSignerRecoverer
	addr, gotChainID, err := r.RecoverSender(raw)
	require.NoError(t, err)
	require.Equal(t, [20]byte(want), addr)
	require.Equal(t, chainID.Uint64(), gotChainID)
}

func TestLatestSignerRecovererRejectsGarbage(t *testing.T) {
	var r LatestSignerRecoverer
	_, _, err := r.RecoverSender([]byte{0xff, 0x00, 0x01})
	require.Error(t, err)
}
