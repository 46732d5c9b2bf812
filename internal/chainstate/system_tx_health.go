// See the file LICENSE for licensing terms.

package chainstate

// SystemTxBackoffThreshold is the number of consecutive system-tx failures
// after which block production backs off until the window expires.
const SystemTxBackoffThreshold = 5

// SystemTxBackoffWindowMs is how long production stays closed once backoff
// engages.
const SystemTxBackoffWindowMs = 30_000

// SystemTxHealth tracks consecutive L1BlockInfo system-tx failures and the
// resulting backoff window, backing spec section 4.3's system_tx_health
// counter and the SystemTxBackoff error reason.
type SystemTxHealth struct {
	ConsecutiveFailures uint32
	LastFailTs          uint64
	LastWarnTs          uint64
	BackoffUntilTs      uint64
	BackoffHits         uint32
}

// RecordFailure bumps the failure streak and, once it crosses the
// threshold, opens a backoff window from nowMs.
func (h *SystemTxHealth) RecordFailure(nowMs uint64) {
	h.ConsecutiveFailures++
	h.LastFailTs = nowMs
	if h.ConsecutiveFailures >= SystemTxBackoffThreshold {
		h.BackoffUntilTs = nowMs + SystemTxBackoffWindowMs
		h.BackoffHits++
	}
}

// RecordSuccess resets the failure streak.
func (h *SystemTxHealth) RecordSuccess() {
	h.ConsecutiveFailures = 0
}

// InBackoff reports whether production should fail closed at nowMs.
func (h *SystemTxHealth) InBackoff(nowMs uint64) bool {
	return nowMs < h.BackoffUntilTs
}
