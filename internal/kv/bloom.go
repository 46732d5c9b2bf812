// See the file LICENSE for licensing terms.

package kv

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/bloomfilter/v2"
)

// logBloomM/logBloomK size a per-block log bloom for a few hundred log
// entries at a low false-positive rate; a pre-filter only, never
// authoritative on its own.
const (
	logBloomM = 2048
	logBloomK = 4
)

// BuildLogBloom indexes every log's address and topics across a block's
// receipts, letting a caller skip reading a block's receipts entirely
// when neither the requested address nor topic could appear in it.
// Grounded on go-ethereum's per-block bloom (core/types.Bloom), using
// holiman/bloomfilter/v2's lighter-weight filter instead of geth's fixed
// 2048-bit representation.
func BuildLogBloom(receipts []ReceiptLike) *bloomfilter.Filter {
	f, err := bloomfilter.New(logBloomM, logBloomK)
	if err != nil {
		return nil
	}
	for _, r := range receipts {
		for _, l := range r.Logs {
			f.Add(LogBloomHash(l.Address[:]))
			for _, t := range l.Topics {
				f.Add(LogBloomHash(t[:]))
			}
		}
	}
	return f
}

// LogBloomHash maps an address or topic's bytes to the filter's hash
// space via keccak256, split into the four 64-bit words bloomfilter.Hash
// expects.
func LogBloomHash(b []byte) bloomfilter.Hash {
	h := crypto.Keccak256(b)
	var hash bloomfilter.Hash
	for i := range hash {
		hash[i] = binary.BigEndian.Uint64(h[i*8 : i*8+8])
	}
	return hash
}
