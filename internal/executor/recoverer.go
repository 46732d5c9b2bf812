// See the file LICENSE for licensing terms.

package executor

import (
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// LatestSignerRecoverer implements mempool.SenderRecoverer using
// go-ethereum's EIP-155/2930/1559-aware latest signer, the same
// recovery path the teacher's tx pool uses to validate a sender before
// admission.
type LatestSignerRecoverer struct{}

func (LatestSignerRecoverer) RecoverSender(raw []byte) (addr [20]byte, chainID uint64, err error) {
	var tx gethtypes.Transaction
	if err = tx.UnmarshalBinary(raw); err != nil {
		return addr, 0, err
	}
	signer := gethtypes.LatestSignerForChainID(tx.ChainId())
	sender, err := gethtypes.Sender(signer, &tx)
	if err != nil {
		return addr, 0, err
	}
	addr = [20]byte(sender)
	if tx.ChainId() != nil {
		chainID = tx.ChainId().Uint64()
	}
	return addr, chainID, nil
}
