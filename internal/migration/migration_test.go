// See the file LICENSE for licensing terms.

package migration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/stateroot"
)

func newTestRunner(t *testing.T, numAccounts int) (*Runner, *kv.StateDB) {
	t.Helper()
	db := kv.NewStateDB()
	for i := 0; i < numAccounts; i++ {
		var addr [20]byte
		addr[19] = byte(i)
		db.UpsertAccount(addr, kv.AccountRecord{Nonce: uint64(i)})
		var slot [32]byte
		slot[31] = byte(i)
		var value [32]byte
		value[31] = byte(i + 1)
		db.SetStorage(addr, slot, value)
	}
	r := &Runner{
		Engine:  stateroot.NewEngine(stateroot.NewNodeDB()),
		StateDB: db,
	}
	return r, db
}

func runToDone(t *testing.T, r *Runner, m *chainstate.StateRootMigration, stepBudget uint64) [32]byte {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		root, done := r.Tick(m, stepBudget)
		if done {
			return root
		}
	}
	t.Fatal("migration never reached Done")
	return [32]byte{}
}

func TestMigrationRunsInitThroughDone(t *testing.T) {
	r, _ := newTestRunner(t, 50)
	m := &chainstate.StateRootMigration{}

	root := runToDone(t, r, m, 4)

	require.Equal(t, chainstate.PhaseDone, m.Phase)
	require.NotEqual(t, [32]byte{}, root)
}

func TestMigrationBuildTrieResumesAcrossTicks(t *testing.T) {
	r, _ := newTestRunner(t, 10)
	m := &chainstate.StateRootMigration{}

	// Init.
	_, done := r.Tick(m, 100)
	require.False(t, done)
	require.Equal(t, chainstate.PhaseBuildTrie, m.Phase)

	// One account per tick; cursor should advance by exactly one each time.
	for i := 0; i < 10; i++ {
		require.Equal(t, uint64(i), m.Cursor)
		_, done := r.Tick(m, 1)
		require.False(t, done)
	}
	require.Equal(t, chainstate.PhaseBuildRefcnt, m.Phase)
}

func TestMigrationVerifyDedupsAlreadyVerifiedAccountsAcrossRewind(t *testing.T) {
	r, _ := newTestRunner(t, VerifySampleMod*3)
	m := &chainstate.StateRootMigration{}

	// Drive to the start of Verify.
	for m.Phase != chainstate.PhaseVerify {
		r.Tick(m, 1000)
	}
	require.NotNil(t, r.verified)
	require.Equal(t, 0, r.verified.Cardinality())

	// Run Verify to completion once; every sampled account should now be
	// recorded as verified.
	for m.Phase == chainstate.PhaseVerify {
		_, done := r.Tick(m, 1000)
		if done {
			break
		}
	}
	require.Equal(t, chainstate.PhaseDone, m.Phase)
	require.Greater(t, r.verified.Cardinality(), 0)

	sampledCount := 0
	for i := range r.addrs {
		if i%VerifySampleMod == 0 {
			sampledCount++
		}
	}
	require.Equal(t, sampledCount, r.verified.Cardinality())
}

func TestMigrationInitResetsVerifiedSet(t *testing.T) {
	r, _ := newTestRunner(t, 5)
	m := &chainstate.StateRootMigration{}
	r.Tick(m, 1000) // Init

	r.verified.Add([20]byte{9, 9, 9})
	require.Equal(t, 1, r.verified.Cardinality())

	m.Phase = chainstate.PhaseInit
	r.Tick(m, 1000)
	require.Equal(t, 0, r.verified.Cardinality())
}
