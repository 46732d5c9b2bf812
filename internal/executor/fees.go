// See the file LICENSE for licensing terms.

package executor

import "math/big"

// EffectiveGasPrice is min(max_fee, base_fee+max_priority) for dynamic-fee
// txs, else gas_price for legacy txs, mirroring spec section 4.4 step 5.
func EffectiveGasPrice(isDynamicFee bool, maxFee, maxPriority, gasPrice *big.Int, baseFee uint64) *big.Int {
	if !isDynamicFee {
		return new(big.Int).Set(gasPrice)
	}
	tip := new(big.Int).Add(new(big.Int).SetUint64(baseFee), maxPriority)
	if maxFee.Cmp(tip) < 0 {
		return new(big.Int).Set(maxFee)
	}
	return tip
}

// TotalFee sums base execution fee, L1 data fee, and operator fee.
func TotalFee(gasUsed uint64, effectiveGasPrice *big.Int, l1DataFee, operatorFee uint64) *big.Int {
	base := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), effectiveGasPrice)
	total := new(big.Int).Add(base, new(big.Int).SetUint64(l1DataFee))
	return total.Add(total, new(big.Int).SetUint64(operatorFee))
}
