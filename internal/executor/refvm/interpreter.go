// See the file LICENSE for licensing terms.

// Package refvm is a small deterministic reference interpreter used as the
// default EVM capability: value-transfer calls, CREATE of trivial init
// code, and straight-line SLOAD/SSTORE sequences, shaped after the
// teacher's core/vm package (interface.go's read/write split) without
// depending on an external Cancun-conformant module, none of which is
// present in the retrieval pack.
package refvm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/icevm/execution-core/internal/executor"
)

const (
	gasStep    = 3
	gasSload   = 100
	gasSstore  = 5000
	gasMemory  = 3
)

// Interpreter is a stack machine over a useful opcode subset: arithmetic,
// comparisons, memory, storage, control flow, and RETURN/REVERT. It has no
// CALL/DELEGATECALL/gas-refund machinery; those are out of scope for the
// scenarios this engine needs to drive end-to-end.
type Interpreter struct{}

func New() *Interpreter { return &Interpreter{} }

type haltError struct {
	reason executor.HaltReason
}

func (h haltError) Error() string { return string(h.reason) }

// Run implements executor.EVM.
func (it *Interpreter) Run(block executor.BlockEnv, tx executor.TxEnv, db executor.ReadDB) (executor.ExecutionResult, error) {
	caller := tx.Caller
	callerAcct, _ := db.Basic(caller)
	if callerAcct == nil {
		callerAcct = &executor.AccountInfo{Balance: big.NewInt(0)}
	}

	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}

	var diffs []executor.AccountDiff
	senderDiff := executor.AccountDiff{
		Address:    caller,
		NewNonce:   callerAcct.Nonce + 1,
		NewBalance: new(big.Int).Sub(callerAcct.Balance, value),
		Touched:    true,
	}

	if tx.Kind == executor.Create {
		return it.runCreate(block, tx, db, senderDiff, value)
	}

	to := tx.To
	toAcct, _ := db.Basic(to)
	toBalance := big.NewInt(0)
	if toAcct != nil {
		toBalance = toAcct.Balance
	}
	recvDiff := executor.AccountDiff{
		Address:    to,
		NewBalance: new(big.Int).Add(toBalance, value),
		Touched:    true,
	}
	if toAcct != nil {
		recvDiff.NewNonce = toAcct.Nonce
		recvDiff.NewCodeHash = toAcct.CodeHash
	}

	code := db.CodeByHash(recvDiff.NewCodeHash)
	if len(code) == 0 {
		diffs = append(diffs, senderDiff, recvDiff)
		return executor.ExecutionResult{
			Status:       1,
			GasUsed:      21000,
			StateChanges: diffs,
		}, nil
	}

	machine := &machine{
		code:    code,
		input:   tx.Data,
		gas:     tx.GasLimit - 21000,
		addr:    to,
		caller:  caller,
		value:   value,
		block:   block,
		db:      db,
		storage: make(map[[32]byte][32]byte),
	}
	output, err := machine.run()
	gasUsed := (tx.GasLimit - 21000 - machine.gas) + 21000

	if err != nil {
		if h, ok := err.(haltError); ok {
			return executor.ExecutionResult{Status: 0, GasUsed: gasUsed, HaltReason: h.reason}, nil
		}
		return executor.ExecutionResult{}, err
	}
	if machine.reverted {
		return executor.ExecutionResult{Status: 0, GasUsed: gasUsed, Output: output, Reverted: true}, nil
	}

	for slot, v := range machine.storage {
		recvDiff.StorageChanges = append(recvDiff.StorageChanges, executor.StorageChange{Slot: slot, Value: v})
	}
	diffs = append(diffs, senderDiff, recvDiff)

	return executor.ExecutionResult{
		Status:       1,
		GasUsed:      gasUsed,
		Output:       output,
		Logs:         machine.logs,
		StateChanges: diffs,
	}, nil
}

// runCreate handles CREATE of trivial init code: the init code runs with no
// input and whatever bytes it RETURNs become the new account's runtime
// code.
func (it *Interpreter) runCreate(block executor.BlockEnv, tx executor.TxEnv, db executor.ReadDB, senderDiff executor.AccountDiff, value *big.Int) (executor.ExecutionResult, error) {
	nonceBytes := big.NewInt(int64(senderDiff.NewNonce - 1))
	created := crypto.CreateAddress(tx.Caller, nonceBytes.Uint64())

	machine := &machine{
		code:    tx.Data,
		input:   nil,
		gas:     tx.GasLimit - 53000,
		addr:    created,
		caller:  tx.Caller,
		value:   value,
		block:   block,
		db:      db,
		storage: make(map[[32]byte][32]byte),
	}
	runtimeCode, err := machine.run()
	gasUsed := (tx.GasLimit - 53000 - machine.gas) + 53000
	if err != nil {
		if h, ok := err.(haltError); ok {
			return executor.ExecutionResult{Status: 0, GasUsed: gasUsed, HaltReason: h.reason}, nil
		}
		return executor.ExecutionResult{}, err
	}
	if machine.reverted {
		return executor.ExecutionResult{Status: 0, GasUsed: gasUsed, Output: runtimeCode, Reverted: true}, nil
	}

	codeHash := crypto.Keccak256Hash(runtimeCode)
	createdAddr := [20]byte(created)
	createdDiff := executor.AccountDiff{
		Address:     createdAddr,
		NewBalance:  value,
		NewCodeHash: codeHash,
		NewCode:     runtimeCode,
		Touched:     true,
	}
	addr := createdAddr
	return executor.ExecutionResult{
		Status:         1,
		GasUsed:        gasUsed,
		CreatedAddress: &addr,
		StateChanges:   []executor.AccountDiff{senderDiff, createdDiff},
	}, nil
}

// machine is the per-call stack-machine state.
type machine struct {
	code     []byte
	input    []byte
	pc       int
	gas      uint64
	stack    []*uint256.Int
	mem      []byte
	storage  map[[32]byte][32]byte
	logs     []executor.Log
	addr     [20]byte
	caller   [20]byte
	value    *big.Int
	block    executor.BlockEnv
	db       executor.ReadDB
	reverted bool
}

func (m *machine) push(v *uint256.Int) error {
	if len(m.stack) >= 1024 {
		return haltError{executor.HaltStackOverflow}
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *machine) pop() (*uint256.Int, error) {
	if len(m.stack) == 0 {
		return nil, haltError{executor.HaltStackUnderflow}
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *machine) useGas(n uint64) error {
	if m.gas < n {
		return haltError{executor.HaltOutOfGas}
	}
	m.gas -= n
	return nil
}

func (m *machine) ensureMem(size int) {
	if len(m.mem) < size {
		grown := make([]byte, size)
		copy(grown, m.mem)
		m.mem = grown
	}
}

func toHash(v *uint256.Int) [32]byte {
	return v.Bytes32()
}

// run executes until STOP/RETURN/REVERT or an error, returning RETURN data
// (nil for STOP).
func (m *machine) run() ([]byte, error) {
	for {
		if m.pc >= len(m.code) {
			return nil, nil
		}
		op := m.code[m.pc]
		if err := m.useGas(gasStep); err != nil {
			return nil, err
		}

		switch {
		case op >= 0x60 && op <= 0x7f: // PUSH1..PUSH32
			n := int(op - 0x5f)
			end := m.pc + 1 + n
			if end > len(m.code) {
				end = len(m.code)
			}
			var buf [32]byte
			raw := m.code[m.pc+1 : end]
			copy(buf[32-len(raw):], raw)
			v := new(uint256.Int).SetBytes(buf[:])
			if err := m.push(v); err != nil {
				return nil, err
			}
			m.pc += 1 + n
			continue
		case op >= 0x80 && op <= 0x8f: // DUP1..DUP16
			idx := int(op - 0x80)
			if idx >= len(m.stack) {
				return nil, haltError{executor.HaltStackUnderflow}
			}
			v := new(uint256.Int).Set(m.stack[len(m.stack)-1-idx])
			if err := m.push(v); err != nil {
				return nil, err
			}
			m.pc++
			continue
		case op >= 0x90 && op <= 0x9f: // SWAP1..SWAP16
			idx := int(op-0x90) + 1
			if idx >= len(m.stack) {
				return nil, haltError{executor.HaltStackUnderflow}
			}
			top := len(m.stack) - 1
			m.stack[top], m.stack[top-idx] = m.stack[top-idx], m.stack[top]
			m.pc++
			continue
		}

		switch op {
		case 0x00: // STOP
			return nil, nil
		case 0x01: // ADD
			a, err := m.pop()
			if err != nil {
				return nil, err
			}
			b, err := m.pop()
			if err != nil {
				return nil, err
			}
			if err := m.push(new(uint256.Int).Add(a, b)); err != nil {
				return nil, err
			}
		case 0x02: // MUL
			a, err := m.pop()
			if err != nil {
				return nil, err
			}
			b, err := m.pop()
			if err != nil {
				return nil, err
			}
			if err := m.push(new(uint256.Int).Mul(a, b)); err != nil {
				return nil, err
			}
		case 0x03: // SUB
			a, err := m.pop()
			if err != nil {
				return nil, err
			}
			b, err := m.pop()
			if err != nil {
				return nil, err
			}
			if err := m.push(new(uint256.Int).Sub(a, b)); err != nil {
				return nil, err
			}
		case 0x10: // LT
			a, err := m.pop()
			if err != nil {
				return nil, err
			}
			b, err := m.pop()
			if err != nil {
				return nil, err
			}
			if a.Lt(b) {
				if err := m.push(uint256.NewInt(1)); err != nil {
					return nil, err
				}
			} else {
				if err := m.push(uint256.NewInt(0)); err != nil {
					return nil, err
				}
			}
		case 0x14: // EQ
			a, err := m.pop()
			if err != nil {
				return nil, err
			}
			b, err := m.pop()
			if err != nil {
				return nil, err
			}
			if a.Eq(b) {
				if err := m.push(uint256.NewInt(1)); err != nil {
					return nil, err
				}
			} else {
				if err := m.push(uint256.NewInt(0)); err != nil {
					return nil, err
				}
			}
		case 0x15: // ISZERO
			a, err := m.pop()
			if err != nil {
				return nil, err
			}
			if a.IsZero() {
				if err := m.push(uint256.NewInt(1)); err != nil {
					return nil, err
				}
			} else {
				if err := m.push(uint256.NewInt(0)); err != nil {
					return nil, err
				}
			}
		case 0x34: // CALLVALUE
			v, _ := uint256.FromBig(m.value)
			if err := m.push(v); err != nil {
				return nil, err
			}
		case 0x35: // CALLDATALOAD
			off, err := m.pop()
			if err != nil {
				return nil, err
			}
			var buf [32]byte
			o := int(off.Uint64())
			for i := 0; i < 32; i++ {
				if o+i < len(m.input) {
					buf[i] = m.input[o+i]
				}
			}
			if err := m.push(new(uint256.Int).SetBytes(buf[:])); err != nil {
				return nil, err
			}
		case 0x36: // CALLDATASIZE
			if err := m.push(uint256.NewInt(uint64(len(m.input)))); err != nil {
				return nil, err
			}
		case 0x42: // TIMESTAMP
			if err := m.push(uint256.NewInt(m.block.Timestamp)); err != nil {
				return nil, err
			}
		case 0x43: // NUMBER
			if err := m.push(uint256.NewInt(m.block.Number)); err != nil {
				return nil, err
			}
		case 0x40: // BLOCKHASH
			n, err := m.pop()
			if err != nil {
				return nil, err
			}
			h := m.db.BlockHash(n.Uint64())
			if err := m.push(new(uint256.Int).SetBytes(h[:])); err != nil {
				return nil, err
			}
		case 0x50: // POP
			if _, err := m.pop(); err != nil {
				return nil, err
			}
		case 0x51: // MLOAD
			off, err := m.pop()
			if err != nil {
				return nil, err
			}
			o := int(off.Uint64())
			if err := m.useGas(gasMemory); err != nil {
				return nil, err
			}
			m.ensureMem(o + 32)
			if err := m.push(new(uint256.Int).SetBytes(m.mem[o : o+32])); err != nil {
				return nil, err
			}
		case 0x52: // MSTORE
			off, err := m.pop()
			if err != nil {
				return nil, err
			}
			val, err := m.pop()
			if err != nil {
				return nil, err
			}
			o := int(off.Uint64())
			if err := m.useGas(gasMemory); err != nil {
				return nil, err
			}
			m.ensureMem(o + 32)
			b := toHash(val)
			copy(m.mem[o:o+32], b[:])
		case 0x54: // SLOAD
			slot, err := m.pop()
			if err != nil {
				return nil, err
			}
			if err := m.useGas(gasSload); err != nil {
				return nil, err
			}
			key := toHash(slot)
			var v [32]byte
			if local, ok := m.storage[key]; ok {
				v = local
			} else {
				v = m.db.Storage(m.addr, key)
			}
			if err := m.push(new(uint256.Int).SetBytes(v[:])); err != nil {
				return nil, err
			}
		case 0x55: // SSTORE
			slot, err := m.pop()
			if err != nil {
				return nil, err
			}
			val, err := m.pop()
			if err != nil {
				return nil, err
			}
			if err := m.useGas(gasSstore); err != nil {
				return nil, err
			}
			m.storage[toHash(slot)] = toHash(val)
		case 0x56: // JUMP
			dest, err := m.pop()
			if err != nil {
				return nil, err
			}
			d := int(dest.Uint64())
			if d < 0 || d >= len(m.code) || m.code[d] != 0x5b {
				return nil, haltError{executor.HaltInvalidJump}
			}
			m.pc = d
			continue
		case 0x57: // JUMPI
			dest, err := m.pop()
			if err != nil {
				return nil, err
			}
			cond, err := m.pop()
			if err != nil {
				return nil, err
			}
			if !cond.IsZero() {
				d := int(dest.Uint64())
				if d < 0 || d >= len(m.code) || m.code[d] != 0x5b {
					return nil, haltError{executor.HaltInvalidJump}
				}
				m.pc = d
				continue
			}
		case 0x58: // PC
			if err := m.push(uint256.NewInt(uint64(m.pc))); err != nil {
				return nil, err
			}
		case 0x5a: // GAS
			if err := m.push(uint256.NewInt(m.gas)); err != nil {
				return nil, err
			}
		case 0x5b: // JUMPDEST
			// no-op
		case 0xf3: // RETURN
			off, err := m.pop()
			if err != nil {
				return nil, err
			}
			size, err := m.pop()
			if err != nil {
				return nil, err
			}
			o, s := int(off.Uint64()), int(size.Uint64())
			m.ensureMem(o + s)
			return append([]byte(nil), m.mem[o:o+s]...), nil
		case 0xfd: // REVERT
			off, err := m.pop()
			if err != nil {
				return nil, err
			}
			size, err := m.pop()
			if err != nil {
				return nil, err
			}
			o, s := int(off.Uint64()), int(size.Uint64())
			m.ensureMem(o + s)
			m.reverted = true
			return append([]byte(nil), m.mem[o:o+s]...), nil
		default:
			return nil, haltError{executor.HaltInvalidOpcode}
		}
		m.pc++
	}
}
