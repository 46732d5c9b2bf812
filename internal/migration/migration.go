// See the file LICENSE for licensing terms.

// Package migration drives the bounded-step state-root rebuild state
// machine of spec section 4.6/4.7; chainstate.SchemaMigration is not
// driven here. The rebuild is split into ticks so an upgrade with a
// large account set never blocks a single message execution for longer
// than its per-tick step budget.
package migration

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/stateroot"
)

// VerifySampleMod and the touched-set caps bound how much of Verify's
// sampled full scan runs per tick; a miss rewinds the migration to
// BuildTrie rather than silently leaving a divergent root committed.
const (
	VerifySampleMod           = 17
	VerifyMaxTouchedAccounts  = 64
	VerifyMaxTouchedSlots     = 256
)

// Runner advances a StateRootMigration cursor one bounded tick at a time.
type Runner struct {
	Engine  *stateroot.Engine
	StateDB *kv.StateDB

	addrs       [][20]byte
	verifyCount int

	// verified dedups across a rewind: a sampled account re-checked after
	// Verify rewinds to BuildTrie does not need to be re-verified once it
	// has already passed.
	verified mapset.Set[[20]byte]
}

// Tick executes up to maxSteps units of work for the migration's current
// phase, returning the new root once Done is reached (zero value
// otherwise) and mutating m in place.
func (r *Runner) Tick(m *chainstate.StateRootMigration, maxSteps uint64) (root [32]byte, justFinished bool) {
	switch m.Phase {
	case chainstate.PhaseInit:
		r.addrs = r.StateDB.SortedAddresses()
		r.Engine = stateroot.NewEngine(r.Engine.NodeDB())
		r.verified = mapset.NewThreadUnsafeSet[[20]byte]()
		m.Cursor = 0
		m.Phase = chainstate.PhaseBuildTrie
		return [32]byte{}, false

	case chainstate.PhaseBuildTrie:
		r.tickBuildTrie(m, maxSteps)
		return [32]byte{}, false

	case chainstate.PhaseBuildRefcnt:
		// Refcounts accumulate automatically as BuildTrie calls Put; this
		// phase exists to let a future on-disk node db need an explicit
		// recount pass without reshaping the phase enum.
		m.Cursor = 0
		m.Phase = chainstate.PhaseVerify
		r.verifyCount = 0
		return [32]byte{}, false

	case chainstate.PhaseVerify:
		ok := r.tickVerify(m, maxSteps)
		if !ok {
			m.Phase = chainstate.PhaseBuildTrie
			m.Cursor = 0
			m.LastError = "verify: sampled mismatch, rebuilding"
			return [32]byte{}, false
		}
		if m.Phase == chainstate.PhaseDone {
			return r.Engine.RebuildFromScratch(r.StateDB), true
		}
		return [32]byte{}, false

	default:
		return [32]byte{}, false
	}
}

func (r *Runner) tickBuildTrie(m *chainstate.StateRootMigration, maxSteps uint64) {
	end := m.Cursor + maxSteps
	if end > uint64(len(r.addrs)) {
		end = uint64(len(r.addrs))
	}
	diffs := make([]stateroot.AccountDiff, 0, end-m.Cursor)
	for i := m.Cursor; i < end; i++ {
		addr := r.addrs[i]
		rec, ok := r.StateDB.GetAccount(addr)
		if !ok {
			continue
		}
		sets := make(map[[32]byte][32]byte)
		r.StateDB.StorageRange(addr, func(slot [32]byte, value [32]byte) bool {
			if value != ([32]byte{}) {
				sets[slot] = value
			}
			return true
		})
		diffs = append(diffs, stateroot.AccountDiff{Addr: addr, Record: rec, StorageSet: sets})
	}
	r.Engine.ApplyBlock(diffs)
	m.Cursor = end
	if m.Cursor >= uint64(len(r.addrs)) {
		m.Cursor = 0
		m.Phase = chainstate.PhaseBuildRefcnt
	}
}

// tickVerify samples every VerifySampleMod-th account from the snapshot
// taken at Init and cross-checks its committed leaf (and a bounded set of
// storage slots) against the live StateDB, advancing to Done once the
// whole snapshot has been sampled without a mismatch.
func (r *Runner) tickVerify(m *chainstate.StateRootMigration, maxSteps uint64) bool {
	r.verifyCount = 0
	checked := uint64(0)
	for m.Cursor < uint64(len(r.addrs)) && checked < maxSteps {
		idx := m.Cursor
		m.Cursor++
		checked++
		if idx%VerifySampleMod != 0 {
			continue
		}
		addr := r.addrs[idx]
		if r.verified.Contains(addr) {
			continue
		}
		rec, ok := r.StateDB.GetAccount(addr)
		if !ok {
			continue
		}
		slots := make(map[[32]byte][32]byte)
		n := 0
		r.StateDB.StorageRange(addr, func(slot [32]byte, value [32]byte) bool {
			if n >= VerifyMaxTouchedSlots {
				return false
			}
			slots[slot] = value
			n++
			return true
		})
		if !r.Engine.VerifyAccount(addr, rec, slots) {
			return false
		}
		r.verified.Add(addr)
		r.verifyCount++
		if r.verifyCount >= VerifyMaxTouchedAccounts {
			break
		}
	}
	if m.Cursor >= uint64(len(r.addrs)) {
		m.Cursor = 0
		m.Phase = chainstate.PhaseDone
	}
	return true
}
