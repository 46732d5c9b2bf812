// See the file LICENSE for licensing terms.

// Package engine assembles every component of the execution engine behind
// one exported facade, analogous to the teacher's plugin/evm.VM: one Go
// method per operation listed in spec.md section 6. DTO/candid/JSON
// shaping is left to an external dispatch layer; this package returns
// plain Go structs and typed errors.
package engine

import (
	"math/big"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/executor"
	"github.com/icevm/execution-core/internal/executor/refvm"
	"github.com/icevm/execution-core/internal/export"
	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/mempool"
	"github.com/icevm/execution-core/internal/migration"
	"github.com/icevm/execution-core/internal/producer"
	"github.com/icevm/execution-core/internal/prune"
	"github.com/icevm/execution-core/internal/rpc"
	"github.com/icevm/execution-core/internal/stable"
	"github.com/icevm/execution-core/internal/stateroot"
)

// GenesisBalance is one entry of the required init argument
// genesis_balances: {address20, amount>0}.
type GenesisBalance struct {
	Address [20]byte
	Amount  *big.Int
}

// Engine wires every component into the single entry surface a host
// canister's exported update/query methods call through.
type Engine struct {
	Registry *stable.Registry
	Blobs    *stable.BlobStore

	Chain      *chainstate.ChainState
	Metrics    *chainstate.MetricsState
	Ops        *chainstate.OpsGuard
	PruneCfg   *chainstate.PruneConfig
	PruneState *chainstate.PruneState
	Health     *chainstate.SystemTxHealth
	StateRootMigration *chainstate.StateRootMigration
	MinerAllowlist     [][20]byte
	LogFilter          *string

	StateDB    *kv.StateDB
	Chainstore *kv.ChainStore

	Mempool   *mempool.Mempool
	Executor  *executor.Executor
	StateRoot *stateroot.Engine
	Producer  *producer.Producer
	Migration *migration.Runner
	Prune     *prune.Engine
	Recoverer mempool.SenderRecoverer
}

// New validates init arguments and wires a fresh engine at genesis,
// crediting every listed address with its starting balance. Any
// violation (empty list, duplicate address, zero/negative amount) traps
// per spec section 6, surfaced here as an error instead of a panic so a
// canister's init wrapper can choose how to trap.
func New(genesis []GenesisBalance) (*Engine, error) {
	if len(genesis) == 0 {
		return nil, errs.New(errs.InvalidArgument, "genesis_balances must be non-empty")
	}
	seen := make(map[[20]byte]bool, len(genesis))
	for _, g := range genesis {
		if seen[g.Address] {
			return nil, errs.New(errs.InvalidArgument, "genesis_balances must have unique addresses")
		}
		seen[g.Address] = true
		if g.Amount == nil || g.Amount.Sign() <= 0 {
			return nil, errs.New(errs.InvalidArgument, "genesis_balances amounts must be positive")
		}
	}

	registry := stable.NewRegistry()
	blobs := stable.NewBlobStore(registry.Region(stable.MemBlobArena))

	chain := chainstate.NewChainState()
	metrics := chainstate.NewMetricsState()
	stateDB := kv.NewStateDB()

	for _, g := range genesis {
		var balance [32]byte
		b := g.Amount.Bytes()
		copy(balance[32-len(b):], b)
		stateDB.UpsertAccount(g.Address, kv.AccountRecord{Balance: balance})
	}

	chainstore := kv.NewChainStore(blobs)
	mp := mempool.New(chain, metrics)
	recoverer := executor.LatestSignerRecoverer{}
	exec := executor.New(refvm.New())
	nodeDB := stateroot.NewNodeDB()
	stateRoot := stateroot.NewEngine(nodeDB)
	health := &chainstate.SystemTxHealth{}

	prod := &producer.Producer{
		Chain:     chain,
		Metrics:   metrics,
		Mempool:   mp,
		Executor:  exec,
		StateDB:   stateDB,
		Engine:    stateRoot,
		Blocks:    chainstore,
		Recoverer: recoverer,
		Health:    health,
	}

	return &Engine{
		Registry:           registry,
		Blobs:              blobs,
		Chain:              chain,
		Metrics:            metrics,
		Ops:                chainstate.NewOpsGuard(),
		PruneCfg:           chainstate.NewPruneConfig(),
		PruneState:         chainstate.NewPruneState(),
		Health:             health,
		StateRootMigration: &chainstate.StateRootMigration{},
		StateDB:            stateDB,
		Chainstore:         chainstore,
		Mempool:            mp,
		Executor:           exec,
		StateRoot:          stateRoot,
		Producer:           prod,
		Migration:          &migration.Runner{Engine: stateRoot, StateDB: stateDB},
		Prune:              prune.NewEngine(chainstore, blobs),
		Recoverer:          recoverer,
	}, nil
}

// writesAllowed implements the ops-mode/migration-pending write gate of
// spec section 5: "when migration_pending || mode==Critical, all write
// entry points are rejected with a fixed code".
func (e *Engine) writesAllowed() bool {
	if e.StateRootMigration.Phase != chainstate.PhaseInit && e.StateRootMigration.Phase != chainstate.PhaseDone {
		return false
	}
	return e.Ops.WritesAllowed()
}

// SubmitTxIn decodes and admits an Ethereum-signed or IC-synthetic
// envelope, per spec section 4.2.
func (e *Engine) SubmitTxIn(raw []byte, kind kv.TxKind, callerPrincipal, canisterID []byte) (kv.TxID, error) {
	if !e.writesAllowed() {
		return kv.TxID{}, errs.New(errs.Internal, "writes rejected: migration pending or ops-critical")
	}
	var decoded mempool.DecodedTx
	var err error
	switch kind {
	case kv.IcSynthetic:
		decoded, err = mempool.DecodeIcSynthetic(raw, callerPrincipal, canisterID)
	case kv.EthSigned:
		decoded, err = mempool.DecodeEthSigned(raw, e.Chain.ChainID, e.Recoverer)
	default:
		return kv.TxID{}, errs.New(errs.UnsupportedTxKind, "unrecognized tx kind")
	}
	if err != nil {
		return kv.TxID{}, err
	}
	return e.Mempool.Submit(raw, decoded)
}

// ProduceResult is the Produced{...} | NoOp{reason} return shape of
// produce_block.
type ProduceResult struct {
	NoOp    bool
	Reason  string
	Number  uint64
	Txs     uint32
	GasUsed uint64
	Dropped uint32
}

// ProduceBlock seals a block from ready mempool candidates, per spec
// section 4.3.
func (e *Engine) ProduceBlock(maxTxs int, nowMs uint64) (ProduceResult, error) {
	if maxTxs < 0 {
		return ProduceResult{}, errs.New(errs.InvalidArgument, "max_txs must be non-negative")
	}
	if !e.writesAllowed() {
		return ProduceResult{}, errs.New(errs.Internal, "writes rejected: migration pending or ops-critical")
	}
	// The producer always seals a block, even an empty one, once asked.
	// Sealing on an empty ready queue would waste a block number and a
	// state-root write on every idle tick, so a tick with nothing ready
	// is reported as NoOp before the producer ever runs. Only the ready
	// queue is checked; the engine wires no system-tx source into the
	// producer.
	limit := maxTxs
	if limit <= 0 || limit > kv.MaxTxsPerBlock {
		limit = kv.MaxTxsPerBlock
	}
	if len(e.Mempool.ReadyCandidates(limit)) == 0 {
		return ProduceResult{NoOp: true, Reason: "no ready transactions"}, nil
	}
	block, err := e.Producer.ProduceBlock(maxTxs, nowMs)
	if err != nil {
		return ProduceResult{}, err
	}
	var gasUsed uint64
	for _, id := range block.TxIDs {
		if r, ok := e.Chainstore.GetReceipt(id); ok {
			gasUsed += r.GasUsed
		}
	}
	return ProduceResult{Number: block.Number, Txs: uint32(len(block.TxIDs)), GasUsed: gasUsed}, nil
}

// PruneResult is the {did_work, remaining, pruned_before_block?} return
// shape of prune_blocks/prune_tick.
type PruneResult struct {
	DidWork         bool
	Remaining       uint64
	PrunedBefore    uint64
	HasPrunedBefore bool
}

// PruneTick evaluates the trigger and runs one bounded prune pass, per
// spec section 4.7.
func (e *Engine) PruneTick(usedBytes, nowMs, lastRunMs uint64) PruneResult {
	if !e.PruneCfg.Enabled {
		return PruneResult{}
	}
	policy := e.PruneCfg.Policy
	trigger := prune.EvaluateTrigger(policy, usedBytes, nowMs, lastRunMs, e.Chain.LastBlockNumber)
	cutoff := prune.RetainCutoff(policy, e.Chain.LastBlockNumber)
	if trigger == prune.TriggerNone || e.Prune.Idle(e.PruneState, cutoff) {
		remaining := uint64(0)
		if cutoff > e.PruneState.NextPruneBlock {
			remaining = cutoff - e.PruneState.NextPruneBlock
		}
		return PruneResult{Remaining: remaining}
	}
	before := e.PruneState.NextPruneBlock
	e.Prune.Tick(e.PruneState, cutoff, policy.MaxOpsPerTick)
	if pb, ok := e.PruneState.PrunedBefore(); ok {
		e.Chainstore.SetOldestKept(pb)
	}
	remaining := uint64(0)
	if cutoff > e.PruneState.NextPruneBlock {
		remaining = cutoff - e.PruneState.NextPruneBlock
	}
	res := PruneResult{DidWork: e.PruneState.NextPruneBlock != before, Remaining: remaining}
	if pb, ok := e.PruneState.PrunedBefore(); ok {
		res.PrunedBefore, res.HasPrunedBefore = pb, true
	}
	return res
}

// --- Config setters (controller-gated by the caller's dispatch layer) ---

func (e *Engine) SetAutoMine(enabled bool) { e.Chain.AutoMineEnabled = enabled }

func (e *Engine) SetMiningIntervalMs(ms uint64) error {
	if ms == 0 {
		return errs.New(errs.InvalidArgument, "mining_interval_ms must be > 0")
	}
	e.Chain.MiningIntervalMs = ms
	return nil
}

func (e *Engine) SetPrunePolicy(policy chainstate.PrunePolicy) { e.PruneCfg.Policy = policy }

func (e *Engine) SetPruningEnabled(enabled bool) { e.PruneCfg.Enabled = enabled }

func (e *Engine) SetOpsConfig(cfg chainstate.OpsConfig) { e.Ops.Config = cfg }

func (e *Engine) SetMinerAllowlist(addrs [][20]byte) { e.MinerAllowlist = addrs }

const LogConfigFilterMax = 256

func (e *Engine) SetLogFilter(filter *string) error {
	if filter != nil && len(*filter) > LogConfigFilterMax {
		return errs.New(errs.InvalidArgument, "log filter exceeds LOG_CONFIG_FILTER_MAX")
	}
	e.LogFilter = filter
	return nil
}

// --- Query operations ---

// LookupStatus distinguishes Pending/Pruned/NotFound for get_block and
// get_receipt lookups.
type LookupStatus uint8

const (
	Found LookupStatus = iota
	NotFound
	Pending
	Pruned
)

func (e *Engine) GetBlock(number uint64) (kv.BlockData, LookupStatus, uint64) {
	if block, ok := e.Chainstore.GetBlock(number); ok {
		return block, Found, 0
	}
	if oldest, ok := e.Chainstore.OldestKeptBlock(); ok && number < oldest {
		return kv.BlockData{}, Pruned, oldest
	}
	return kv.BlockData{}, NotFound, 0
}

func (e *Engine) GetReceipt(id kv.TxID) (kv.ReceiptLike, LookupStatus, uint64) {
	if r, ok := e.Chainstore.GetReceipt(id); ok {
		return r, Found, 0
	}
	if loc, ok := e.Mempool.Loc(id); ok {
		if loc.Kind == kv.Queued {
			return kv.ReceiptLike{}, Pending, 0
		}
		if loc.Kind == kv.Included {
			if oldest, ok := e.Chainstore.OldestKeptBlock(); ok && loc.BlockNumber < oldest {
				return kv.ReceiptLike{}, Pruned, oldest
			}
		}
	}
	return kv.ReceiptLike{}, NotFound, 0
}

func (e *Engine) GetTxLoc(id kv.TxID) (kv.TxLoc, bool) { return e.Mempool.Loc(id) }

func (e *Engine) GetQueueSnapshot(limit int, cursor *uint64) ([]mempool.QueueSnapshotItem, *uint64, error) {
	return e.Mempool.QueueSnapshot(limit, cursor)
}

// --- RPC-style facade ---

func (e *Engine) EthChainID() uint64 { return rpc.EthChainID(e.Chain.ChainID) }

func (e *Engine) EthBlockNumber() uint64 { return rpc.EthBlockNumber(e.Chainstore) }

func (e *Engine) EthGetBlockByNumber(number uint64, fullTx bool) (kv.BlockData, bool) {
	return rpc.EthGetBlockByNumber(e.Chainstore, number, fullTx)
}

func (e *Engine) EthGetTransactionByHash(id kv.TxID) (kv.StoredTx, kv.TxLoc, bool) {
	return rpc.EthGetTransactionByHash(e.Mempool, id)
}

func (e *Engine) EthGetTransactionReceipt(id kv.TxID) (kv.ReceiptLike, bool) {
	return rpc.EthGetTransactionReceipt(e.Chainstore, id)
}

func (e *Engine) EthGetBalance(addr [20]byte) *big.Int {
	return rpc.EthGetBalance(e.StateDB, addr)
}

func (e *Engine) EthGetCode(addr [20]byte) []byte {
	return rpc.EthGetCode(e.StateDB, addr)
}

func (e *Engine) EthGetLogs(filter rpc.LogFilter) ([]rpc.LogResult, error) {
	return rpc.EthGetLogs(e.Chainstore, filter)
}

// --- Export ---

type exportSource struct {
	*kv.ChainStore
	mp *mempool.Mempool
}

func (s exportSource) GetStoredTx(id kv.TxID) (kv.StoredTx, bool) { return s.mp.StoredTx(id) }

func (e *Engine) ExportBlocks(cursor *export.Cursor, maxBytes uint32) ([]export.Chunk, *export.Cursor, error) {
	return export.Export(exportSource{ChainStore: e.Chainstore, mp: e.Mempool}, cursor, maxBytes)
}

// --- Observability ---

type HealthStatus struct {
	OpsMode            chainstate.OpsMode
	MigrationPending   bool
	SystemTxBackoff    bool
	LastBlockNumber    uint64
}

func (e *Engine) Health(nowMs uint64) HealthStatus {
	return HealthStatus{
		OpsMode:          e.Ops.State.Mode,
		MigrationPending: e.StateRootMigration.Phase != chainstate.PhaseInit && e.StateRootMigration.Phase != chainstate.PhaseDone,
		SystemTxBackoff:  e.Health.InBackoff(nowMs),
		LastBlockNumber:  e.Chain.LastBlockNumber,
	}
}

func (e *Engine) MetricsWindow(window int) []chainstate.MetricsBucket {
	if window <= 0 || window > chainstate.MetricsBuckets {
		window = chainstate.MetricsBuckets
	}
	out := make([]chainstate.MetricsBucket, 0, window)
	for i := 0; i < window; i++ {
		idx := (int(e.Metrics.BucketCursor) - 1 - i + chainstate.MetricsBuckets*2) % chainstate.MetricsBuckets
		out = append(out, e.Metrics.Buckets[idx])
	}
	return out
}

type PruneStatus struct {
	Enabled         bool
	NextPruneBlock  uint64
	PrunedBefore    uint64
	HasPrunedBefore bool
}

func (e *Engine) GetPruneStatus() PruneStatus {
	status := PruneStatus{Enabled: e.PruneCfg.Enabled, NextPruneBlock: e.PruneState.NextPruneBlock}
	if pb, ok := e.PruneState.PrunedBefore(); ok {
		status.PrunedBefore, status.HasPrunedBefore = pb, true
	}
	return status
}

func (e *Engine) GetOpsStatus() chainstate.OpsState { return e.Ops.State }
