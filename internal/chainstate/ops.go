// See the file LICENSE for licensing terms.

package chainstate

// OpsMode classifies the cycle-balance observer's current state.
type OpsMode uint8

const (
	OpsNormal   OpsMode = 0
	OpsLow      OpsMode = 1
	OpsCritical OpsMode = 2
)

// OpsConfig carries the cycle-balance watermarks.
type OpsConfig struct {
	LowWatermark      uint64
	CriticalWatermark uint64
	FreezeOnCritical  bool
}

func DefaultOpsConfig() OpsConfig {
	return OpsConfig{
		LowWatermark:      2_000_000_000_000,
		CriticalWatermark: 1_000_000_000_000,
		FreezeOnCritical:  true,
	}
}

// OpsState tracks the observer's last reading and latch.
type OpsState struct {
	LastCycleBalance uint64
	LastCheckTs      uint64
	Mode             OpsMode
	SafeStopLatched  bool
}

// OpsGuard implements the cycle-balance-observer mode machine: Normal/Low/
// Critical, with Critical latching until balance recovers past the low
// watermark when FreezeOnCritical is set.
type OpsGuard struct {
	Config OpsConfig
	State  OpsState
}

func NewOpsGuard() *OpsGuard {
	return &OpsGuard{Config: DefaultOpsConfig()}
}

// Observe updates the guard with a fresh cycle balance reading and
// timestamp, returning the resulting mode.
func (g *OpsGuard) Observe(balance, timestampNs uint64) OpsMode {
	g.State.LastCycleBalance = balance
	g.State.LastCheckTs = timestampNs

	if g.State.SafeStopLatched {
		if balance > g.Config.LowWatermark {
			g.State.SafeStopLatched = false
		} else {
			g.State.Mode = OpsCritical
			return OpsCritical
		}
	}

	switch {
	case balance < g.Config.CriticalWatermark:
		g.State.Mode = OpsCritical
		if g.Config.FreezeOnCritical {
			g.State.SafeStopLatched = true
		}
	case balance < g.Config.LowWatermark:
		g.State.Mode = OpsLow
	default:
		g.State.Mode = OpsNormal
	}
	return g.State.Mode
}

// WritesAllowed reports whether write entry points should proceed; Critical
// mode rejects all writes.
func (g *OpsGuard) WritesAllowed() bool { return g.State.Mode != OpsCritical }
