// See the file LICENSE for licensing terms.

package mempool

import (
	"encoding/binary"
	"fmt"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/kv"
)

// icSyntheticHeaderLen is the fixed portion of the v2 IC-synthetic wire
// format: ver(1) to(20) value(32) gas_limit(8) nonce(8) max_fee(16)
// max_priority(16) data_len(4).
const icSyntheticHeaderLen = 1 + 20 + 32 + 8 + 8 + 16 + 16 + 4

// DecodeIcSynthetic parses the fixed v2 header described in spec section
// 4.2: version 1 (pre-EIP-1559 fields) is rejected at intake.
func DecodeIcSynthetic(raw []byte, callerPrincipal, canisterID []byte) (DecodedTx, error) {
	if len(raw) < 1 {
		return DecodedTx{}, errs.New(errs.DecodeFailed, "empty ic-synthetic tx")
	}
	ver := raw[0]
	if ver != 2 {
		return DecodedTx{}, errs.New(errs.DecodeFailed, fmt.Sprintf("unsupported ic-synthetic version %d", ver))
	}
	if len(raw) < icSyntheticHeaderLen {
		return DecodedTx{}, errs.New(errs.DecodeFailed, "ic-synthetic header truncated")
	}
	off := 1
	var to [20]byte
	copy(to[:], raw[off:off+20])
	off += 20
	// value32 is accepted but not retained on DecodedTx: fee/nonce
	// admission never inspects it.
	off += 32
	gasLimit := binary.BigEndian.Uint64(raw[off : off+8])
	_ = gasLimit
	off += 8
	nonce := binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	maxFee := new(big.Int).SetBytes(raw[off : off+16])
	off += 16
	maxPriority := new(big.Int).SetBytes(raw[off : off+16])
	off += 16
	dataLen := binary.BigEndian.Uint32(raw[off : off+4])
	off += 4
	if uint32(len(raw)-off) < dataLen {
		return DecodedTx{}, errs.New(errs.DecodeFailed, "ic-synthetic data truncated")
	}
	if off+int(dataLen) != len(raw) {
		return DecodedTx{}, errs.New(errs.TrailingBytes, "trailing bytes after ic-synthetic data")
	}

	return DecodedTx{
		Kind:                 kv.IcSynthetic,
		Nonce:                nonce,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
		IsDynamicFee:         true,
		CallerEVM:            to,
		CallerPrincipal:      callerPrincipal,
		CanisterID:           canisterID,
	}, nil
}

// DecodeEthSigned decodes an EIP-2718-prefixed Ethereum envelope
// (legacy/2930/1559/4844/7702) and recovers its sender via the injected
// capability, rejecting a legacy tx with no chain id and any chain id that
// does not match configuredChainID.
func DecodeEthSigned(raw []byte, configuredChainID uint64, recoverer SenderRecoverer) (DecodedTx, error) {
	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return DecodedTx{}, errs.Wrap(errs.DecodeFailed, "rlp decode failed", err)
	}

	chainID := tx.ChainId()
	if tx.Type() == gethtypes.LegacyTxType && (chainID == nil || chainID.Sign() == 0) {
		return DecodedTx{}, errs.New(errs.DecodeFailed, "legacy tx without chain id")
	}
	if chainID != nil && chainID.Sign() != 0 && chainID.Uint64() != configuredChainID {
		return DecodedTx{}, errs.New(errs.DecodeFailed, "chain id mismatch")
	}

	sender, recoveredChainID, err := recoverer.RecoverSender(raw)
	if err != nil {
		return DecodedTx{}, errs.Wrap(errs.DecodeFailed, "sender recovery failed", err)
	}
	if recoveredChainID != 0 && recoveredChainID != configuredChainID {
		return DecodedTx{}, errs.New(errs.DecodeFailed, "chain id mismatch")
	}

	isDynamic := tx.Type() != gethtypes.LegacyTxType && tx.Type() != gethtypes.AccessListTxType

	d := DecodedTx{
		Kind:    kv.EthSigned,
		Sender:  sender,
		Nonce:   tx.Nonce(),
		ChainID: configuredChainID,
	}
	if isDynamic {
		d.IsDynamicFee = true
		d.MaxFeePerGas = tx.GasFeeCap()
		d.MaxPriorityFeePerGas = tx.GasTipCap()
	} else {
		d.GasPrice = tx.GasPrice()
	}
	return d, nil
}
