// See the file LICENSE for licensing terms.

package kv

import (
	"bytes"
	"math/big"
	"sort"
)

// StateDB is the map-backed store of committed account, storage, and code
// state, plus the 256-entry recent block-hash ring the BLOCKHASH opcode
// reads from. It implements both the executor's read capability and its
// commit target, keeping the account/storage/code maps as the single
// source of truth between the mempool's decoder and the block producer.
type StateDB struct {
	accounts map[[20]byte]AccountRecord
	storage  map[StorageKey][32]byte
	code     map[CodeKey][]byte

	blockHashes [256][32]byte
	blockNums   [256]uint64
	haveHash    [256]bool
}

func NewStateDB() *StateDB {
	return &StateDB{
		accounts: make(map[[20]byte]AccountRecord),
		storage:  make(map[StorageKey][32]byte),
		code:     make(map[CodeKey][]byte),
	}
}

// AccountInfo mirrors executor.AccountInfo without importing it, so kv has
// no dependency on executor; executor.ReadDB's Basic signature is
// satisfied structurally by a small adapter in the caller.
type AccountInfo struct {
	Nonce    uint64
	Balance  *big.Int
	CodeHash [32]byte
}

func (s *StateDB) Basic(addr [20]byte) (*AccountInfo, bool) {
	rec, ok := s.accounts[addr]
	if !ok {
		return nil, false
	}
	return &AccountInfo{
		Nonce:    rec.Nonce,
		Balance:  new(big.Int).SetBytes(rec.Balance[:]),
		CodeHash: rec.CodeHash,
	}, true
}

func (s *StateDB) CodeByHash(codeHash [32]byte) []byte {
	return s.code[MakeCodeKey(codeHash)]
}

func (s *StateDB) Storage(addr [20]byte, slot [32]byte) [32]byte {
	return s.storage[MakeStorageKey(addr, slot)]
}

// BlockHash returns the stored hash for number, or a zero hash when it
// falls outside the 256-entry window, regardless of whether a block at
// that height still physically exists.
func (s *StateDB) BlockHash(number uint64) [32]byte {
	idx := number % 256
	if !s.haveHash[idx] || s.blockNums[idx] != number {
		return [32]byte{}
	}
	return s.blockHashes[idx]
}

// RecordBlockHash is called by the producer after sealing a block, keeping
// the 256-entry ring current.
func (s *StateDB) RecordBlockHash(number uint64, hash [32]byte) {
	idx := number % 256
	s.blockHashes[idx] = hash
	s.blockNums[idx] = number
	s.haveHash[idx] = true
}

func (s *StateDB) UpsertAccount(addr [20]byte, rec AccountRecord) { s.accounts[addr] = rec }

func (s *StateDB) RemoveAccount(addr [20]byte) { delete(s.accounts, addr) }

func (s *StateDB) GetAccount(addr [20]byte) (AccountRecord, bool) {
	rec, ok := s.accounts[addr]
	return rec, ok
}

func (s *StateDB) SetStorage(addr [20]byte, slot [32]byte, value [32]byte) {
	s.storage[MakeStorageKey(addr, slot)] = value
}

func (s *StateDB) DeleteStorage(addr [20]byte, slot [32]byte) {
	delete(s.storage, MakeStorageKey(addr, slot))
}

// RemoveAllStorage deletes every slot in addr's contiguous key range,
// mirroring the selfdestruct cleanup of spec section 4.4 step 4.
func (s *StateDB) RemoveAllStorage(addr [20]byte) {
	for k := range s.storage {
		if bytes.Equal(k[0:20], addr[:]) {
			delete(s.storage, k)
		}
	}
}

func (s *StateDB) WriteCode(codeHash [32]byte, code []byte) {
	s.code[MakeCodeKey(codeHash)] = code
}

// AccountsRange iterates every account in address order, used by the
// state-root engine to (re)build the account trie during migration.
func (s *StateDB) AccountsRange(fn func(addr [20]byte, rec AccountRecord) bool) {
	for _, addr := range s.SortedAddresses() {
		if !fn(addr, s.accounts[addr]) {
			return
		}
	}
}

// SortedAddresses returns every account address in ascending byte order, a
// stable snapshot a bounded migration tick can page through by index.
func (s *StateDB) SortedAddresses() [][20]byte {
	addrs := make([][20]byte, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// StorageRange iterates every stored slot for addr.
func (s *StateDB) StorageRange(addr [20]byte, fn func(slot [32]byte, value [32]byte) bool) {
	lo, hi := StorageRangeBounds(addr)
	for k, v := range s.storage {
		if bytesBetween(k.Bytes(), lo.Bytes(), hi.Bytes()) {
			if !fn(k.slot(), v) {
				return
			}
		}
	}
}

func (k StorageKey) slot() [32]byte {
	var s [32]byte
	copy(s[:], k[20:52])
	return s
}

func bytesBetween(b, lo, hi []byte) bool {
	return compareBytes(b, lo) >= 0 && compareBytes(b, hi) <= 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
