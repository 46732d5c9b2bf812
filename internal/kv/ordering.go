// See the file LICENSE for licensing terms.

package kv

import "encoding/binary"

const (
	ReadyKeyLen       = 72
	SenderKeyLen      = 20
	SenderNonceKeyLen = 28
	CallerKeyLen      = 30
)

// invertU128 computes math.MaxUint128 - v on a 16-byte big-endian value, so
// that ascending byte-lexicographic order over the inverted value yields
// descending numeric order over v. Since MaxUint128 is all-ones, the
// subtraction reduces to a bitwise complement. Used for both max_fee and
// max_priority in ReadyKey so the single byte-compare produces DESC-fee,
// DESC-priority ordering.
func invertU128(v [16]byte) [16]byte {
	var out [16]byte
	for i := 0; i < 16; i++ {
		out[i] = ^v[i]
	}
	return out
}

// ReadyKey is the 72-byte ordering key for the ready queue:
// [max_fee_inv(16) | max_priority_inv(16) | seq_be(8) | tx_id(32)], giving
// DESC fee, DESC priority, ASC seq, ASC tx_id under ascending byte compare.
type ReadyKey [ReadyKeyLen]byte

// NewReadyKey builds the key from a dynamic-fee tx's static fee fields.
func NewReadyKey(maxFee, maxPriority [16]byte, seq uint64, txID TxID) ReadyKey {
	var k ReadyKey
	copy(k[0:16], invertU128(maxFee)[:])
	copy(k[16:32], invertU128(maxPriority)[:])
	binary.BigEndian.PutUint64(k[32:40], seq)
	copy(k[40:72], txID[:])
	return k
}

func (k ReadyKey) Bytes() []byte { return k[:] }

// SenderKey is the raw 20-byte EVM address used as a map key.
type SenderKey [SenderKeyLen]byte

func (k SenderKey) Bytes() []byte { return k[:] }

// SenderNonceKey is (sender, nonce), 28 bytes big-endian nonce appended.
type SenderNonceKey [SenderNonceKeyLen]byte

func NewSenderNonceKey(sender [20]byte, nonce uint64) SenderNonceKey {
	var k SenderNonceKey
	copy(k[0:20], sender[:])
	binary.BigEndian.PutUint64(k[20:28], nonce)
	return k
}

func (k SenderNonceKey) Bytes() []byte { return k[:] }

// CallerKey encodes a host principal as a 1-byte length prefix followed by
// up to 29 raw bytes, zero-padded to a fixed 30-byte record so it can key
// an OrderedMap.
type CallerKey [CallerKeyLen]byte

func NewCallerKey(principal []byte) CallerKey {
	var k CallerKey
	n := len(principal)
	if n > CallerKeyLen-1 {
		n = CallerKeyLen - 1
	}
	k[0] = byte(n)
	copy(k[1:1+n], principal[:n])
	return k
}

func (k CallerKey) Bytes() []byte { return k[:] }
