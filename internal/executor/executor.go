// See the file LICENSE for licensing terms.

package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/kv"
)

// CommitTarget is the stable-map write surface the executor's per-tx
// overlay is applied to, kept separate from internal/kv's concrete map
// types so this package stays decoupled from the persistence substrate's
// storage choices.
type CommitTarget interface {
	UpsertAccount(addr [20]byte, rec kv.AccountRecord)
	RemoveAccount(addr [20]byte)
	SetStorage(addr [20]byte, slot [32]byte, value [32]byte)
	DeleteStorage(addr [20]byte, slot [32]byte)
	RemoveAllStorage(addr [20]byte)
	WriteCode(codeHash [32]byte, code []byte)
}

// Executor runs one transaction through an EVM capability, commits its
// per-account overlay, computes fee accounting, and shapes a ReceiptLike.
type Executor struct {
	VM EVM
	L1 chainstate.L1BlockInfo
}

func New(vm EVM) *Executor { return &Executor{VM: vm} }

// ExecuteTx runs tx through the EVM and commits its resulting state
// overlay into target, returning the shaped receipt. txRaw is the
// original wire bytes, needed only for the L1 data-fee estimate.
func (e *Executor) ExecuteTx(block BlockEnv, tx TxEnv, txRaw []byte, txID kv.TxID, blockNumber uint64, txIndex uint32, db ReadDB, target CommitTarget) (kv.ReceiptLike, ExecutionResult, error) {
	result, err := e.VM.Run(block, tx, db)
	if err != nil {
		return kv.ReceiptLike{}, ExecutionResult{}, err
	}

	if result.Status == 1 {
		for _, diff := range result.StateChanges {
			e.applyDiff(diff, target)
		}
	}

	effGasPrice := EffectiveGasPrice(tx.IsDynamicFee, tx.MaxFeePerGas, tx.PriorityFee, tx.GasPrice, block.BaseFee)
	l1Fee := e.L1.L1DataFee(txRaw)
	opFee := e.L1.OperatorFee(result.GasUsed)
	total := TotalFee(result.GasUsed, effGasPrice, l1Fee, opFee)

	receipt := kv.ReceiptLike{
		TxID:              txID,
		BlockNumber:       blockNumber,
		TxIndex:           txIndex,
		Status:            result.Status,
		GasUsed:           result.GasUsed,
		EffectiveGasPrice: effGasPrice.Uint64(),
		L1DataFee:         l1Fee,
		OperatorFee:       opFee,
		TotalFee:          total.Uint64(),
		ReturnData:        result.Output,
		ReturnDataHash:    crypto.Keccak256Hash(result.Output),
		ContractAddress:   result.CreatedAddress,
	}
	for _, l := range result.Logs {
		receipt.Logs = append(receipt.Logs, kv.LogEntry{Address: l.Address, Topics: l.Topics, Data: l.Data})
	}
	return receipt, result, nil
}

// applyDiff commits one account's overlay into stable maps: selfdestruct
// (touched-and-empty or explicitly destroyed) removes the account and its
// entire storage range, and leaves the code map, keyed by code hash,
// untouched; otherwise the account is upserted
// and each changed slot is set (or removed, if written to zero).
func (e *Executor) applyDiff(diff AccountDiff, target CommitTarget) {
	isEmpty := diff.NewNonce == 0 && (diff.NewBalance == nil || diff.NewBalance.Sign() == 0) && diff.NewCodeHash == ([32]byte{})
	if diff.SelfDestructed || (isEmpty && diff.Touched && diff.NewCode == nil) {
		target.RemoveAccount(diff.Address)
		target.RemoveAllStorage(diff.Address)
		return
	}

	balance := diff.NewBalance
	if balance == nil {
		balance = big.NewInt(0)
	}
	var balBytes [32]byte
	b := balance.Bytes()
	copy(balBytes[32-len(b):], b)

	target.UpsertAccount(diff.Address, kv.AccountRecord{
		Nonce:    diff.NewNonce,
		Balance:  balBytes,
		CodeHash: diff.NewCodeHash,
	})

	if diff.NewCode != nil {
		target.WriteCode(diff.NewCodeHash, diff.NewCode)
	}

	for _, sc := range diff.StorageChanges {
		if sc.Value == ([32]byte{}) {
			target.DeleteStorage(diff.Address, sc.Slot)
		} else {
			target.SetStorage(diff.Address, sc.Slot, sc.Value)
		}
	}
}
