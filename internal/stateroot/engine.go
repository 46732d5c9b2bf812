// See the file LICENSE for licensing terms.

package stateroot

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/icevm/execution-core/internal/kv"
)

// accountLeaf is the value stored at an address's leaf in the account
// trie: its committed record plus the root of its storage trie, so the
// account trie alone commits to the full state.
type accountLeaf struct {
	Nonce       uint64
	Balance     [32]byte
	CodeHash    [32]byte
	StorageRoot [32]byte
}

const accountLeafLen = 8 + 32 + 32 + 32

func (a accountLeaf) encode() []byte {
	buf := make([]byte, accountLeafLen)
	binary.BigEndian.PutUint64(buf[0:8], a.Nonce)
	copy(buf[8:40], a.Balance[:])
	copy(buf[40:72], a.CodeHash[:])
	copy(buf[72:104], a.StorageRoot[:])
	return buf
}

func decodeAccountLeaf(b []byte) (accountLeaf, bool) {
	if len(b) != accountLeafLen {
		return accountLeaf{}, false
	}
	var a accountLeaf
	a.Nonce = binary.BigEndian.Uint64(b[0:8])
	copy(a.Balance[:], b[8:40])
	copy(a.CodeHash[:], b[40:72])
	copy(a.StorageRoot[:], b[72:104])
	return a, true
}

// Engine maintains the account trie and, lazily, the per-account storage
// tries that hang off it, all backed by one shared NodeDB. It is the
// component the block producer asks for a new state root after applying
// a block's account/storage diffs, and that the migration tick (re)builds
// from scratch when bootstrapping from a schema without one.
type Engine struct {
	db           *NodeDB
	accounts     *Trie
	storageRoots map[[20]byte][32]byte
}

func NewEngine(db *NodeDB) *Engine {
	return &Engine{db: db, accounts: NewTrie(db), storageRoots: make(map[[20]byte][32]byte)}
}

func OpenEngine(db *NodeDB, accountRoot [32]byte) *Engine {
	return &Engine{db: db, accounts: OpenTrie(db, accountRoot), storageRoots: make(map[[20]byte][32]byte)}
}

func accountTrieKey(addr [20]byte) []byte {
	h := crypto.Keccak256(addr[:])
	return h
}

func storageTrieKey(slot [32]byte) []byte {
	h := crypto.Keccak256(slot[:])
	return h
}

// storageRootFor returns the cached or looked-up storage trie root for addr.
func (e *Engine) storageRootFor(addr [20]byte, rec kv.AccountRecord, existingLeaf []byte) [32]byte {
	if root, ok := e.storageRoots[addr]; ok {
		return root
	}
	if existingLeaf != nil {
		if leaf, ok := decodeAccountLeaf(existingLeaf); ok {
			return leaf.StorageRoot
		}
	}
	return [32]byte{}
}

// AccountDiff is the minimal per-account delta the engine needs to update
// the state root: the committed record (ignored when Removed is set),
// plus any storage slots written or cleared this block.
type AccountDiff struct {
	Addr        [20]byte
	Removed     bool
	Record      kv.AccountRecord
	StorageSet  map[[32]byte][32]byte
	StorageDrop [][32]byte
}

// ApplyBlock folds a block's account/storage diffs into the trie,
// returning the new account-trie root. It mutates the engine's in-memory
// storage-trie roots; callers that need journal/apply separation should
// snapshot the engine's root beforehand and discard the engine on failure.
func (e *Engine) ApplyBlock(diffs []AccountDiff) [32]byte {
	for _, d := range diffs {
		key := accountTrieKey(d.Addr)
		if d.Removed {
			if root, ok := e.storageRoots[d.Addr]; ok && root != ([32]byte{}) {
				OpenTrie(e.db, root).DropAll()
			}
			delete(e.storageRoots, d.Addr)
			e.accounts.Delete(key)
			continue
		}

		existing, _ := e.accounts.Get(key)
		root := e.storageRootFor(d.Addr, d.Record, existing)
		if len(d.StorageSet) > 0 || len(d.StorageDrop) > 0 {
			st := OpenTrie(e.db, root)
			for slot, value := range d.StorageSet {
				st.Put(storageTrieKey(slot), value[:])
			}
			for _, slot := range d.StorageDrop {
				st.Delete(storageTrieKey(slot))
			}
			root = st.Root()
			e.storageRoots[d.Addr] = root
		}

		leaf := accountLeaf{
			Nonce:       d.Record.Nonce,
			Balance:     d.Record.Balance,
			CodeHash:    d.Record.CodeHash,
			StorageRoot: root,
		}
		e.accounts.Put(key, leaf.encode())
	}
	return e.accounts.Root()
}

// AccountStorageRoot exposes the cached storage-trie root for addr, used
// by sampled verification to cross-check a live StateDB account.
func (e *Engine) AccountStorageRoot(addr [20]byte) ([32]byte, bool) {
	key := accountTrieKey(addr)
	existing, ok := e.accounts.Get(key)
	if !ok {
		return [32]byte{}, false
	}
	leaf, ok := decodeAccountLeaf(existing)
	if !ok {
		return [32]byte{}, false
	}
	return leaf.StorageRoot, true
}

// VerifyAccount checks that the trie's committed leaf for addr matches the
// account record and a sampled set of storage slots from the live
// StateDB, used by the sampled full-scan verification of spec section 4.6.
func (e *Engine) VerifyAccount(addr [20]byte, rec kv.AccountRecord, slots map[[32]byte][32]byte) bool {
	existing, ok := e.accounts.Get(accountTrieKey(addr))
	if !ok {
		return false
	}
	leaf, ok := decodeAccountLeaf(existing)
	if !ok {
		return false
	}
	if leaf.Nonce != rec.Nonce || leaf.Balance != rec.Balance || leaf.CodeHash != rec.CodeHash {
		return false
	}
	if len(slots) == 0 {
		return true
	}
	st := OpenTrie(e.db, leaf.StorageRoot)
	for slot, want := range slots {
		got, ok := st.Get(storageTrieKey(slot))
		if want == ([32]byte{}) {
			if ok {
				return false
			}
			continue
		}
		if !ok || [32]byte(got32(got)) != want {
			return false
		}
	}
	return true
}

func got32(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

// RebuildFromScratch iterates every account and storage slot in src,
// replacing the engine's account trie entirely. Used by the BuildTrie
// migration phase when bootstrapping a state root for the first time.
func (e *Engine) RebuildFromScratch(src *kv.StateDB) [32]byte {
	e.accounts = NewTrie(e.db)
	e.storageRoots = make(map[[20]byte][32]byte)

	src.AccountsRange(func(addr [20]byte, rec kv.AccountRecord) bool {
		st := NewTrie(e.db)
		src.StorageRange(addr, func(slot [32]byte, value [32]byte) bool {
			if value != ([32]byte{}) {
				st.Put(storageTrieKey(slot), value[:])
			}
			return true
		})
		root := st.Root()
		e.storageRoots[addr] = root
		leaf := accountLeaf{Nonce: rec.Nonce, Balance: rec.Balance, CodeHash: rec.CodeHash, StorageRoot: root}
		e.accounts.Put(accountTrieKey(addr), leaf.encode())
		return true
	})
	return e.accounts.Root()
}

func (e *Engine) NodeDB() *NodeDB { return e.db }
