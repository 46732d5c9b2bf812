// See the file LICENSE for licensing terms.

// Package kv defines the engine's typed persisted records (the Storable
// entities of spec section 3: transactions, locations, blocks, receipts,
// ordering keys) and their fixed on-wire layouts, ported field-for-field
// from the original evm-db chain_data module.
package kv

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// TxID uniquely identifies a stored transaction.
type TxID [32]byte

func (id TxID) String() string { return fmt.Sprintf("%x", id[:]) }

// TxKind distinguishes an Ethereum-signed envelope from a host-originated
// synthetic transaction; TxId derivation differs by kind so the two
// namespaces never collide.
type TxKind uint8

const (
	EthSigned   TxKind = 0
	IcSynthetic TxKind = 1
)

const (
	// StoredTxVersion is the only StoredTx version this engine accepts; a
	// decode yielding any other version produces the invalid-tx sentinel.
	StoredTxVersion uint8 = 2

	// MaxTxSize bounds raw_bytes for any stored transaction.
	MaxTxSize = 131072
)

// StoredTx is the versioned, immutable envelope persisted for every
// admitted transaction.
type StoredTx struct {
	Version               uint8
	TxID                  TxID
	Kind                  TxKind
	Raw                   []byte
	CallerEVM             *[20]byte // optional
	CallerPrincipal       []byte
	CanisterID            []byte
	MaxFeePerGas          [16]byte // u128 big-endian
	MaxPriorityFeePerGas  [16]byte // u128 big-endian
	IsDynamicFee          bool
}

// EthTxID derives the TxId for an Ethereum-signed transaction: keccak of
// its canonical wire bytes.
func EthTxID(raw []byte) TxID {
	return TxID(crypto.Keccak256Hash(raw))
}

// IcSyntheticTxID derives the TxId for a host-originated synthetic
// transaction: keccak over a domain-separated concatenation of the kind
// tag, raw bytes, declared caller EVM address, canister id, and caller
// principal, so that two requests sharing (kind, raw) but differing in any
// of those fields never collide.
func IcSyntheticTxID(raw []byte, callerEVM [20]byte, canisterID, callerPrincipal []byte) TxID {
	buf := make([]byte, 0, 1+len(raw)+20+len(canisterID)+len(callerPrincipal)+8)
	buf = append(buf, byte(IcSynthetic))
	buf = append(buf, raw...)
	buf = append(buf, callerEVM[:]...)
	buf = appendLenPrefixed(buf, canisterID)
	buf = appendLenPrefixed(buf, callerPrincipal)
	return TxID(crypto.Keccak256Hash(buf))
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

// placeholderHash hashes a tag (FNV-1a) into the placeholder TxId that
// InvalidStoredTx carries; this keeps the
// sentinel deterministic without pulling in a second hash dependency.
func placeholderHash(tag string) TxID {
	var h uint64 = 0xcbf29ce484222325
	for i := 0; i < len(tag); i++ {
		h ^= uint64(tag[i])
		h *= 0x100000001b3
	}
	var id TxID
	for i := 0; i < 4; i++ {
		binary.BigEndian.PutUint64(id[i*8:i*8+8], h)
		h *= 0x100000001b3
	}
	return id
}

// InvalidStoredTx builds a sentinel StoredTx for a record that fails to
// decode; it carries a deterministic placeholder TxId so it can still be
// logged/dropped uniformly. The producer does not call it: it drops an
// undecodable tx with DropDecode directly.
func InvalidStoredTx(tag string) StoredTx {
	return StoredTx{
		Version: 0,
		TxID:    placeholderHash(tag),
		Kind:    EthSigned,
	}
}

// IsValid reports whether this record decoded into the current schema
// version.
func (s StoredTx) IsValid() bool { return s.Version == StoredTxVersion }

// TxIndexEntry locates a transaction within a committed block: fixed
// 12-byte layout (block_number:8 big-endian, tx_index:4 big-endian).
type TxIndexEntry struct {
	BlockNumber uint64
	TxIndex     uint32
}

const TxIndexEntryLen = 12

func (e TxIndexEntry) Encode() []byte {
	buf := make([]byte, TxIndexEntryLen)
	binary.BigEndian.PutUint64(buf[0:8], e.BlockNumber)
	binary.BigEndian.PutUint32(buf[8:12], e.TxIndex)
	return buf
}

func DecodeTxIndexEntry(b []byte) (TxIndexEntry, bool) {
	if len(b) != TxIndexEntryLen {
		return TxIndexEntry{}, false
	}
	return TxIndexEntry{
		BlockNumber: binary.BigEndian.Uint64(b[0:8]),
		TxIndex:     binary.BigEndian.Uint32(b[8:12]),
	}, true
}
