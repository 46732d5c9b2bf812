// See the file LICENSE for licensing terms.

// Package prune implements the bounded, resumable pruning algorithm of
// spec section 4.7: trigger evaluation against the configured policy, a
// two-phase quarantine-then-free blob lifecycle journaled so a crash
// between phases never double-frees or leaks a slot, and strict
// monotonicity of the pruned-before-block watermark.
package prune

import (
	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/stable"
)

// BlockStore is the narrow capability the prune engine needs over
// committed blocks: enumerate a block's blob pointers (the blobs holding
// its block record and its receipts) and remove its record once
// every pointer backing it has been journaled for reclamation.
type BlockStore interface {
	BlobPointersForBlock(number uint64) ([]stable.BlobPtr, bool)
	DeleteBlock(number uint64)
}

// Trigger reports why (or whether) a prune pass should run this tick.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	TriggerTimer
	TriggerCapacity
	TriggerHardEmergency
)

// EvaluateTrigger decides whether pruning should run this tick and which
// trigger fired: hard emergency first, then capacity, then the timer. It
// does not compute how far to prune; RetainCutoff does that.
func EvaluateTrigger(policy chainstate.PrunePolicy, usedBytes uint64, nowMs uint64, lastRunMs uint64, lastBlockNumber uint64) Trigger {
	if policy.TargetBytes > 0 && usedBytes >= policy.ComputeHardEmergency() {
		return TriggerHardEmergency
	}
	if policy.TargetBytes > 0 && usedBytes >= policy.ComputeHighWater() {
		return TriggerCapacity
	}
	if policy.TimerIntervalMs > 0 && nowMs-lastRunMs >= policy.TimerIntervalMs {
		return TriggerTimer
	}
	return TriggerNone
}

// RetainCutoff returns the exclusive upper bound of blocks eligible for
// pruning: lastBlockNumber - RetainBlocks, or 0 when RetainBlocks is 0 or
// not below lastBlockNumber. RetainDays is not consulted.
func RetainCutoff(policy chainstate.PrunePolicy, lastBlockNumber uint64) uint64 {
	if policy.RetainBlocks == 0 || policy.RetainBlocks >= lastBlockNumber {
		return 0
	}
	return lastBlockNumber - policy.RetainBlocks
}

// Journal is the resumable in-flight state for one prune run: blocks
// whose pointers have been quarantined but not yet freed. It must be
// durable across ticks (spec section 4.7 calls this the prune journal)
// so a restart mid-run resumes the free phase instead of re-quarantining.
type Journal struct {
	pendingFree []stable.BlobPtr
	pendingFreeBlock []uint64 // parallel: which block each pointer belongs to, for DeleteBlock bookkeeping
}

// Engine runs one bounded tick of the prune algorithm per call.
type Engine struct {
	Blocks  BlockStore
	Blobs   *stable.BlobStore
	Journal *Journal
}

func NewEngine(blocks BlockStore, blobs *stable.BlobStore) *Engine {
	return &Engine{Blocks: blocks, Blobs: blobs, Journal: &Journal{}}
}

// Tick performs up to maxOps blob-store operations: draining the free
// phase first (any pointers left over from a prior quarantine pass),
// then quarantining pointers for newly eligible blocks up to cutoff,
// advancing state.NextPruneBlock/prunedBeforeBlock as blocks fully clear,
// and finally freeing what this pass quarantined while budget remains.
func (e *Engine) Tick(state *chainstate.PruneState, cutoff uint64, maxOps uint32) {
	ops := uint32(0)

	for ops < maxOps && len(e.Journal.pendingFree) > 0 {
		ptr := e.Journal.pendingFree[0]
		e.Journal.pendingFree = e.Journal.pendingFree[1:]
		e.Journal.pendingFreeBlock = e.Journal.pendingFreeBlock[1:]
		if err := e.Blobs.MarkFree(ptr); err != nil {
			_ = stable.AsEngineError(err) // already-free from a prior crash recovery is not fatal
		}
		ops++
	}

	start := state.NextPruneBlock
	for ops < maxOps && start < cutoff {
		ptrs, ok := e.Blocks.BlobPointersForBlock(start)
		if !ok {
			start++
			state.NextPruneBlock = start
			continue
		}
		for _, ptr := range ptrs {
			if ops >= maxOps {
				break
			}
			if err := e.Blobs.MarkQuarantine(ptr); err == nil {
				e.Journal.pendingFree = append(e.Journal.pendingFree, ptr)
				e.Journal.pendingFreeBlock = append(e.Journal.pendingFreeBlock, start)
			}
			ops++
		}
		if ops >= maxOps {
			break
		}
		e.Blocks.DeleteBlock(start)
		state.SetPrunedBefore(start + 1)
		start++
		state.NextPruneBlock = start
	}

	for ops < maxOps && len(e.Journal.pendingFree) > 0 {
		ptr := e.Journal.pendingFree[0]
		e.Journal.pendingFree = e.Journal.pendingFree[1:]
		e.Journal.pendingFreeBlock = e.Journal.pendingFreeBlock[1:]
		_ = e.Blobs.MarkFree(ptr)
		ops++
	}
}

// Idle reports whether the journal has fully drained and no further
// blocks are eligible below cutoff, i.e. a subsequent tick would be a
// no-op.
func (e *Engine) Idle(state *chainstate.PruneState, cutoff uint64) bool {
	return len(e.Journal.pendingFree) == 0 && state.NextPruneBlock >= cutoff
}
