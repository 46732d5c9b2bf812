// See the file LICENSE for licensing terms.

package executor

import "github.com/icevm/execution-core/internal/kv"

// KVStateDB adapts *kv.StateDB to the ReadDB/CommitTarget interfaces this
// package defines, keeping kv free of any dependency on executor's types.
type KVStateDB struct {
	*kv.StateDB
}

func NewKVStateDB(db *kv.StateDB) KVStateDB { return KVStateDB{db} }

func (a KVStateDB) Basic(addr [20]byte) (*AccountInfo, bool) {
	info, ok := a.StateDB.Basic(addr)
	if !ok {
		return nil, false
	}
	return &AccountInfo{Nonce: info.Nonce, Balance: info.Balance, CodeHash: info.CodeHash}, true
}
