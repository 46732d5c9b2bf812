// See the file LICENSE for licensing terms.

package chainstate

const (
	MetricsBuckets = 256
	DropCodeSlots  = 8
	emaAlphaX1000  = 200 // alpha = 0.2, fixed-point x1000
)

// MetricsBucket records one block's contribution to the metrics ring.
type MetricsBucket struct {
	BlockNumber uint64
	Timestamp   uint64
	Txs         uint32
	Drops       uint32
}

// MetricsState is the fixed-capacity ring of per-block metrics plus running
// totals and EMA-smoothed rates, matching evm-db's MetricsStateV1.
type MetricsState struct {
	TotalSubmitted     uint64
	TotalIncluded      uint64
	TotalDropped       uint64
	DropCounts         [DropCodeSlots]uint64
	EmaBlockRateX1000  uint64
	EmaTxsPerBlockX1000 uint64
	LastEmaTimestamp   uint64
	BucketCursor       uint32
	Buckets            [MetricsBuckets]MetricsBucket
}

func NewMetricsState() *MetricsState { return &MetricsState{} }

// RecordSubmission increments the submission counter; called on every
// successful mempool admission.
func (m *MetricsState) RecordSubmission() { m.TotalSubmitted++ }

// RecordDrop increments both the total-dropped counter and the drop_counts
// slot for the given code.
func (m *MetricsState) RecordDrop(code int) {
	m.TotalDropped++
	if code >= 0 && code < DropCodeSlots {
		m.DropCounts[code]++
	}
}

// RecordIncluded increments the inclusion counter for one tx.
func (m *MetricsState) RecordIncluded() { m.TotalIncluded++ }

// RecordBlock appends a bucket in strict commit order (ring wraps via
// bucket_cursor % MetricsBuckets) and updates the EMA block-rate and
// txs-per-block figures.
func (m *MetricsState) RecordBlock(blockNumber, timestamp uint64, txs, drops uint32) {
	idx := m.BucketCursor % MetricsBuckets
	m.Buckets[idx] = MetricsBucket{BlockNumber: blockNumber, Timestamp: timestamp, Txs: txs, Drops: drops}
	m.BucketCursor++
	m.updateEMA(timestamp, txs)
}

func (m *MetricsState) updateEMA(timestamp uint64, txs uint32) {
	if m.LastEmaTimestamp == 0 {
		m.LastEmaTimestamp = timestamp
		m.EmaTxsPerBlockX1000 = uint64(txs) * 1000
		m.EmaBlockRateX1000 = 1000
		return
	}
	deltaMs := timestamp - m.LastEmaTimestamp
	m.LastEmaTimestamp = timestamp

	sampleTxs := uint64(txs) * 1000
	m.EmaTxsPerBlockX1000 = ewma(m.EmaTxsPerBlockX1000, sampleTxs)

	if deltaMs > 0 {
		rateSample := 1000 * 1000 / deltaMs // blocks per 1000ms, x1000
		m.EmaBlockRateX1000 = ewma(m.EmaBlockRateX1000, rateSample)
	}
}

// ewma applies prev*(1-alpha) + sample*alpha with alpha=0.2 in fixed point.
func ewma(prev, sample uint64) uint64 {
	return (prev*(1000-emaAlphaX1000) + sample*emaAlphaX1000) / 1000
}
