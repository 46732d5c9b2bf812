// See the file LICENSE for licensing terms.

// Package executor presents committed state to the EVM capability through
// the four-method read interface of spec section 4.4, classifies execution
// results, and shapes receipts and fee accounting. The interpreter itself
// is an external collaborator per spec section 1; internal/executor/refvm
// is a small deterministic stand-in grounded in the teacher's core/vm
// package shape, not a claim of full Cancun conformance.
package executor

import "math/big"

// AccountInfo is the basic account record the EVM reads for CALL/nonce
// checks.
type AccountInfo struct {
	Nonce    uint64
	Balance  *big.Int
	CodeHash [32]byte
}

// ReadDB is the read-only capability the executor presents to the EVM,
// matching spec section 4.4 exactly: basic/code_by_hash/storage/block_hash.
type ReadDB interface {
	Basic(addr [20]byte) (*AccountInfo, bool)
	CodeByHash(codeHash [32]byte) []byte
	Storage(addr [20]byte, slot [32]byte) [32]byte
	// BlockHash returns the stored hash for number, or a zero hash when it
	// falls outside the 256-block BLOCKHASH window, regardless of whether
	// the DB still physically holds it (spec section 4.3).
	BlockHash(number uint64) [32]byte
}

// BlockEnv is the per-block context passed to the EVM.
type BlockEnv struct {
	Number    uint64
	Timestamp uint64
	BaseFee   uint64
}

// TxKind distinguishes a value/code Call from contract-creation.
type TxKind uint8

const (
	Call   TxKind = 0
	Create TxKind = 1
)

// TxEnv is the normalized transaction environment built from a decoded
// mempool entry, ready for EVM invocation.
type TxEnv struct {
	Caller       [20]byte
	GasLimit     uint64
	IsDynamicFee bool
	GasPrice     *big.Int // legacy-only
	MaxFeePerGas *big.Int // dynamic-fee only
	PriorityFee  *big.Int // dynamic-fee only
	Kind         TxKind
	To           [20]byte // valid when Kind == Call
	Value        *big.Int
	Data         []byte
	Nonce        uint64
	ChainID      uint64
}

// StorageChange is one slot write (or zero-clear) applied by a tx.
type StorageChange struct {
	Slot  [32]byte
	Value [32]byte
}

// AccountDiff is the per-account delta produced by a successful execution.
type AccountDiff struct {
	Address         [20]byte
	NewNonce        uint64
	NewBalance      *big.Int
	NewCodeHash     [32]byte
	NewCode         []byte // non-nil only when code changed
	StorageChanges  []StorageChange
	SelfDestructed  bool
	Touched         bool
}

// HaltReason classifies an abnormal (non-revert) stop.
type HaltReason string

const (
	HaltOutOfGas          HaltReason = "OutOfGas"
	HaltInvalidOpcode      HaltReason = "InvalidOpcode"
	HaltStackOverflow      HaltReason = "StackOverflow"
	HaltStackUnderflow     HaltReason = "StackUnderflow"
	HaltInvalidJump        HaltReason = "InvalidJump"
	HaltStaticStateChange  HaltReason = "StaticStateChange"
	HaltPrecompileError    HaltReason = "PrecompileError"
	HaltUnknown            HaltReason = "Unknown"
)

// ExecutionResult is the classified outcome of invoking the EVM for one tx.
type ExecutionResult struct {
	Status         uint8 // 1 success, 0 revert/halt
	GasUsed        uint64
	Output         []byte
	Logs           []Log
	CreatedAddress *[20]byte
	StateChanges   []AccountDiff
	HaltReason     HaltReason // set only when the result is a Halt
	Reverted       bool
}

// Log mirrors kv.LogEntry but stays independent of the kv package so the
// EVM-facing interface has no persistence-layer dependency.
type Log struct {
	Address [20]byte
	Topics  [][32]byte
	Data    []byte
}

// EVM is the capability boundary the producer invokes; internal/executor/
// refvm.Interpreter implements it.
type EVM interface {
	Run(block BlockEnv, tx TxEnv, db ReadDB) (ExecutionResult, error)
}
