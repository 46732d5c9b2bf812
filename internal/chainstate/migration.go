// See the file LICENSE for licensing terms.

package chainstate

// StateRootPhase is a step in the state-root migration state machine
// invoked on upgrade (spec section 4.6).
type StateRootPhase uint8

const (
	PhaseInit       StateRootPhase = 0
	PhaseBuildTrie  StateRootPhase = 1
	PhaseBuildRefcnt StateRootPhase = 2
	PhaseVerify     StateRootPhase = 3
	PhaseDone       StateRootPhase = 4
)

func (p StateRootPhase) String() string {
	switch p {
	case PhaseInit:
		return "Init"
	case PhaseBuildTrie:
		return "BuildTrie"
	case PhaseBuildRefcnt:
		return "BuildRefcnt"
	case PhaseVerify:
		return "Verify"
	case PhaseDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// StateRootMigration is the resumable cursor for the state-root rebuild
// state machine.
type StateRootMigration struct {
	Phase               StateRootPhase
	Cursor              uint64
	LastError           string
	SchemaVersionTarget uint32
}

// SchemaMigration is a simpler, single-pass schema-upgrade cursor used when
// a stored record's on-wire shape itself changes version (distinct from the
// state-root rebuild, which can run independently of a schema bump).
type SchemaMigration struct {
	FromVersion uint32
	ToVersion   uint32
	Cursor      uint64
	Done        bool
}

func (m *SchemaMigration) IsDone() bool { return m.Done || m.FromVersion == m.ToVersion }
