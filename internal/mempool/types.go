// See the file LICENSE for licensing terms.

// Package mempool implements the admission pipeline of spec section 4.2:
// decode, fee/nonce admission, replacement, per-sender/global/per-principal
// capacity gates, and the seven derived ordering indices.
package mempool

import (
	"math/big"

	"github.com/icevm/execution-core/internal/kv"
)

// Capacity and window constants. The distilled spec names these knobs
// (MAX_PENDING_GLOBAL, MAX_PENDING_PER_SENDER, MAX_PENDING_PER_PRINCIPAL,
// MAX_NONCE_WINDOW, MAX_QUEUE_SNAPSHOT_LIMIT) without fixing their values;
// original_source's constants.rs does not enumerate them either, so these
// are engine-chosen defaults, recorded as an Open Question resolution in
// DESIGN.md. They are compile-time constants with no runtime override.
const (
	MaxPendingGlobal          = 50_000
	MaxPendingPerSender       = 64
	MaxPendingPerPrincipal    = 256
	MaxNonceWindow            = 8
	MaxQueueSnapshotLimit     = 1000
)

// SenderRecoverer recovers the sender address from an Ethereum-signed
// envelope. It stands in for the spec's external "ECDSA signature
// recovery" collaborator; the engine never implements signature
// cryptography itself beyond this capability boundary.
type SenderRecoverer interface {
	RecoverSender(raw []byte) (addr [20]byte, chainID uint64, err error)
}

// DecodedTx is the normalized shape produced by intake decoding, carrying
// only the fields the admission pipeline and fee math need.
type DecodedTx struct {
	Kind                 kv.TxKind
	Sender               [20]byte
	Nonce                uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int // legacy-only
	IsDynamicFee         bool
	ChainID              uint64
	CallerEVM            [20]byte // IcSynthetic only
	CallerPrincipal      []byte
	CanisterID           []byte
}

// EffectiveGasPrice is min(max_fee, base_fee+max_priority) for dynamic-fee
// txs, else gas_price for legacy txs.
func (d DecodedTx) EffectiveGasPrice(baseFee uint64) (*big.Int, bool) {
	if d.IsDynamicFee {
		if d.MaxFeePerGas == nil || d.MaxPriorityFeePerGas == nil {
			return nil, false
		}
		tip := new(big.Int).Add(big.NewInt(0).SetUint64(baseFee), d.MaxPriorityFeePerGas)
		if d.MaxFeePerGas.Cmp(tip) < 0 {
			return d.MaxFeePerGas, true
		}
		return tip, true
	}
	if d.GasPrice == nil {
		return nil, false
	}
	return d.GasPrice, true
}

func u128ToBytes(v *big.Int) [16]byte {
	var out [16]byte
	if v == nil {
		return out
	}
	b := v.Bytes()
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(out[16-len(b):], b)
	return out
}
