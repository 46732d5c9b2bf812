// See the file LICENSE for licensing terms.

package chainstate

// L1BlockInfo carries the Optimism-style L1 data-fee / operator-fee
// parameters refreshed by the per-block system tx (spec section 4.3), a
// feature the distilled spec names but whose exact per-spec byte layout it
// explicitly leaves unresolved (spec section 9); this engine only needs the
// scalar fields the fee formulas in section 4.4 consume.
type L1BlockInfo struct {
	Enabled              bool
	L1BaseFee            uint64
	L1BlobBaseFee        uint64
	BaseFeeScalar        uint64
	BlobBaseFeeScalar    uint64
	OperatorFeeScalar    uint64
	OperatorFeeConstant  uint64
}

// RollupDataGas counts the standard Ethereum calldata gas cost of raw tx
// bytes: 4 gas per zero byte, 16 per non-zero byte, reused here as the
// L1 data-fee input per the Ecotone/Isthmus-style formula.
func RollupDataGas(raw []byte) uint64 {
	var gas uint64
	for _, b := range raw {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

// L1DataFee computes the Ecotone/Isthmus-style L1 data fee:
//
//	weighted_gas = base_fee_scalar*16*l1_base_fee + blob_base_fee_scalar*l1_blob_base_fee
//	l1_data_fee  = weighted_gas * rollup_data_gas / 16 / 1e6
func (l L1BlockInfo) L1DataFee(raw []byte) uint64 {
	if !l.Enabled {
		return 0
	}
	weightedGas := l.BaseFeeScalar*16*l.L1BaseFee + l.BlobBaseFeeScalar*l.L1BlobBaseFee
	dataGas := RollupDataGas(raw)
	return weightedGas * dataGas / 16 / 1_000_000
}

// OperatorFee computes gas_used*operator_fee_scalar + operator_fee_constant
// (Isthmus uses gas_used rather than gas_limit).
func (l L1BlockInfo) OperatorFee(gasUsed uint64) uint64 {
	if !l.Enabled {
		return 0
	}
	return gasUsed*l.OperatorFeeScalar + l.OperatorFeeConstant
}
