// See the file LICENSE for licensing terms.

package chainstate

// NoneU64 is the sentinel used in place of Option<u64> for fields with no
// natural zero value (oldest_kept_block/oldest_kept_timestamp).
const NoneU64 = ^uint64(0)

// PrunePolicy is the caller-facing configuration surface for the prune
// engine, grounded in evm-db's PrunePolicy/PruneConfigV1 split between
// user-tunable fields and derived bps thresholds.
type PrunePolicy struct {
	TargetBytes           uint64
	RetainDays            uint64
	RetainBlocks          uint64
	HeadroomRatioBps      uint32
	HardEmergencyRatioBps uint32
	TimerIntervalMs       uint64
	MaxOpsPerTick         uint32
}

func DefaultPrunePolicy() PrunePolicy {
	return PrunePolicy{
		HeadroomRatioBps:      2000,
		HardEmergencyRatioBps: 9500,
		TimerIntervalMs:       60_000,
		MaxOpsPerTick:         5_000,
	}
}

// PruneConfig is the persisted record: the policy plus the oldest-kept
// bookkeeping, using NoneU64 as the "unset" sentinel.
type PruneConfig struct {
	Policy              PrunePolicy
	oldestKeptBlock     uint64
	oldestKeptTimestamp uint64
	Enabled             bool
}

func NewPruneConfig() *PruneConfig {
	return &PruneConfig{
		Policy:              DefaultPrunePolicy(),
		oldestKeptBlock:     NoneU64,
		oldestKeptTimestamp: NoneU64,
		Enabled:             true,
	}
}

func (c *PruneConfig) OldestBlock() (uint64, bool) {
	if c.oldestKeptBlock == NoneU64 {
		return 0, false
	}
	return c.oldestKeptBlock, true
}

func (c *PruneConfig) OldestTimestamp() (uint64, bool) {
	if c.oldestKeptTimestamp == NoneU64 {
		return 0, false
	}
	return c.oldestKeptTimestamp, true
}

func (c *PruneConfig) SetOldest(block, timestamp uint64) {
	c.oldestKeptBlock = block
	c.oldestKeptTimestamp = timestamp
}

func (c *PruneConfig) ClearOldest() {
	c.oldestKeptBlock = NoneU64
	c.oldestKeptTimestamp = NoneU64
}

// ComputeRatioBytes returns bytes scaled by bps/10000, rounding down.
func ComputeRatioBytes(bytes uint64, bps uint32) uint64 {
	return bytes * uint64(bps) / 10000
}

// ComputeHighWater returns the byte threshold above which capacity pruning
// triggers: target minus the headroom reserved below it.
func (p PrunePolicy) ComputeHighWater() uint64 {
	headroom := ComputeRatioBytes(p.TargetBytes, p.HeadroomRatioBps)
	if headroom >= p.TargetBytes {
		return 0
	}
	return p.TargetBytes - headroom
}

// ComputeHardEmergency returns the byte threshold above which the
// hard-emergency trigger overrides retention rules.
func (p PrunePolicy) ComputeHardEmergency() uint64 {
	return ComputeRatioBytes(p.TargetBytes, p.HardEmergencyRatioBps)
}

// PruneState is the resumable cursor for the prune journal.
type PruneState struct {
	prunedBeforeBlock uint64
	NextPruneBlock    uint64
}

func NewPruneState() *PruneState {
	return &PruneState{prunedBeforeBlock: NoneU64}
}

func (s *PruneState) PrunedBefore() (uint64, bool) {
	if s.prunedBeforeBlock == NoneU64 {
		return 0, false
	}
	return s.prunedBeforeBlock, true
}

func (s *PruneState) SetPrunedBefore(n uint64) { s.prunedBeforeBlock = n }
