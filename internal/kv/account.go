// See the file LICENSE for licensing terms.

package kv

import "encoding/binary"

// AccountRecord is the persisted account record keyed by EVM address.
type AccountRecord struct {
	Nonce    uint64
	Balance  [32]byte // u256 big-endian
	CodeHash [32]byte
}

const AccountRecordEncodedLen = 8 + 32 + 32

func (a AccountRecord) Encode() []byte {
	buf := make([]byte, AccountRecordEncodedLen)
	binary.BigEndian.PutUint64(buf[0:8], a.Nonce)
	copy(buf[8:40], a.Balance[:])
	copy(buf[40:72], a.CodeHash[:])
	return buf
}

func DecodeAccountRecord(b []byte) (AccountRecord, bool) {
	if len(b) != AccountRecordEncodedLen {
		return AccountRecord{}, false
	}
	var a AccountRecord
	a.Nonce = binary.BigEndian.Uint64(b[0:8])
	copy(a.Balance[:], b[8:40])
	copy(a.CodeHash[:], b[40:72])
	return a, true
}

// StorageKey is make_storage_key(addr, slot): 52 bytes, address followed by
// the 32-byte slot, ordered so a prefix scan over an address's full range
// is a contiguous key-space slice (used by selfdestruct cleanup and the
// storage-trie migration scan).
type StorageKey [52]byte

func MakeStorageKey(addr [20]byte, slot [32]byte) StorageKey {
	var k StorageKey
	copy(k[0:20], addr[:])
	copy(k[20:52], slot[:])
	return k
}

func (k StorageKey) Bytes() []byte { return k[:] }

// StorageRangeBounds returns the inclusive [lo, hi] StorageKey bounds for
// an address's entire storage range, used to delete all of an account's
// slots on selfdestruct.
func StorageRangeBounds(addr [20]byte) (lo, hi StorageKey) {
	lo = MakeStorageKey(addr, [32]byte{})
	var maxSlot [32]byte
	for i := range maxSlot {
		maxSlot[i] = 0xff
	}
	hi = MakeStorageKey(addr, maxSlot)
	return lo, hi
}

// CodeKey is make_code_key(code_hash): the code blob is keyed directly by
// its hash, so identical code across accounts is stored once.
type CodeKey [32]byte

func MakeCodeKey(codeHash [32]byte) CodeKey { return CodeKey(codeHash) }

func (k CodeKey) Bytes() []byte { return k[:] }
