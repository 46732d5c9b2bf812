// See the file LICENSE for licensing terms.

package rpc

import (
	"github.com/holiman/bloomfilter/v2"

	"github.com/icevm/execution-core/internal/kv"
)

// BlockMayMatch reports whether a block's log bloom might contain a log
// matching filter; a false result means it definitely does not, letting
// the caller skip reading that block's receipts entirely. A nil bloom
// (index unavailable) always returns true, falling back to a full scan.
func BlockMayMatch(bloom *bloomfilter.Filter, filter LogFilter) bool {
	if bloom == nil {
		return true
	}
	if filter.Address != nil && !bloom.Contains(kv.LogBloomHash(filter.Address[:])) {
		return false
	}
	if filter.Topic0 != nil && !bloom.Contains(kv.LogBloomHash(filter.Topic0[:])) {
		return false
	}
	return true
}
