// See the file LICENSE for licensing terms.

// Package producer implements produce_block, spec section 4.3: pulling
// ready candidates from the mempool in fee order, executing each against
// committed state, and sealing a block once enough gas or transactions
// have been consumed.
package producer

import (
	"encoding/binary"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/executor"
	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/mempool"
)

// buildTxEnv re-parses a StoredTx's raw envelope into the full
// executor.TxEnv the EVM needs, independent of the admission-time
// DecodedTx (which deliberately drops to/value/data/gas_limit once a tx
// is admitted).
func buildTxEnv(stored kv.StoredTx, recoverer mempool.SenderRecoverer, chainID uint64) (executor.TxEnv, error) {
	if stored.Kind == kv.IcSynthetic {
		return buildIcSyntheticTxEnv(stored)
	}
	return buildEthSignedTxEnv(stored, recoverer, chainID)
}

func buildIcSyntheticTxEnv(stored kv.StoredTx) (executor.TxEnv, error) {
	raw := stored.Raw
	const headerLen = 1 + 20 + 32 + 8 + 8 + 16 + 16 + 4
	if len(raw) < headerLen || stored.CallerEVM == nil {
		return executor.TxEnv{}, errs.New(errs.DecodeFailed, "malformed ic-synthetic envelope at execution time")
	}
	off := 1
	var to [20]byte
	copy(to[:], raw[off:off+20])
	off += 20
	value := new(big.Int).SetBytes(raw[off : off+32])
	off += 32
	gasLimit := binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	nonce := binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	maxFee := new(big.Int).SetBytes(raw[off : off+16])
	off += 16
	maxPriority := new(big.Int).SetBytes(raw[off : off+16])
	off += 16
	dataLen := binary.BigEndian.Uint32(raw[off : off+4])
	off += 4
	data := append([]byte{}, raw[off:off+int(dataLen)]...)

	kind := executor.Call
	if to == ([20]byte{}) {
		kind = executor.Create
	}

	return executor.TxEnv{
		Caller:       *stored.CallerEVM,
		GasLimit:     gasLimit,
		IsDynamicFee: true,
		MaxFeePerGas: maxFee,
		PriorityFee:  maxPriority,
		Kind:         kind,
		To:           to,
		Value:        value,
		Data:         data,
		Nonce:        nonce,
	}, nil
}

func buildEthSignedTxEnv(stored kv.StoredTx, recoverer mempool.SenderRecoverer, chainID uint64) (executor.TxEnv, error) {
	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(stored.Raw); err != nil {
		return executor.TxEnv{}, errs.Wrap(errs.DecodeFailed, "rlp decode failed at execution time", err)
	}
	sender, _, err := recoverer.RecoverSender(stored.Raw)
	if err != nil {
		return executor.TxEnv{}, errs.Wrap(errs.DecodeFailed, "sender recovery failed at execution time", err)
	}

	env := executor.TxEnv{
		Caller:   sender,
		GasLimit: tx.Gas(),
		Value:    tx.Value(),
		Data:     tx.Data(),
		Nonce:    tx.Nonce(),
		ChainID:  chainID,
	}
	if to := tx.To(); to != nil {
		env.Kind = executor.Call
		env.To = [20]byte(*to)
	} else {
		env.Kind = executor.Create
	}
	if stored.IsDynamicFee {
		env.IsDynamicFee = true
		env.MaxFeePerGas = tx.GasFeeCap()
		env.PriorityFee = tx.GasTipCap()
	} else {
		env.GasPrice = tx.GasPrice()
	}
	return env, nil
}
