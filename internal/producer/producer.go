// See the file LICENSE for licensing terms.

package producer

import (
	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/executor"
	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/mempool"
	"github.com/icevm/execution-core/internal/stateroot"
	"github.com/icevm/execution-core/log"
)

// BlockGasLimit bounds how much gas a single produced block may consume;
// the distilled spec leaves its exact value to the engine, so this is
// recorded as an Open Question resolution in DESIGN.md.
const BlockGasLimit = 30_000_000

// SystemTxSource optionally supplies one synthetic system transaction to
// execute ahead of a block's user transactions (e.g. a cross-canister
// callback), per spec section 4.3 step 1. The system tx is not listed in
// the block's tx ids and gets no receipt. It is a capability boundary:
// the producer never constructs system-tx payloads itself.
type SystemTxSource interface {
	NextSystemTx() (raw []byte, ok bool)
}

// Blocks is the append-only store the producer commits sealed blocks
// into, kept separate from internal/kv's map types so this package stays
// decoupled from the persistence substrate's storage choices.
type Blocks interface {
	PutBlock(kv.BlockData)
	PutReceipt(kv.TxID, kv.ReceiptLike)
	SetHead(kv.Head)
}

// Producer wires the mempool, executor, state-root engine, and chain
// state together to seal one block at a time.
type Producer struct {
	Chain      *chainstate.ChainState
	Metrics    *chainstate.MetricsState
	Mempool    *mempool.Mempool
	Executor   *executor.Executor
	StateDB    *kv.StateDB
	Engine     *stateroot.Engine
	Blocks     Blocks
	Recoverer  mempool.SenderRecoverer
	SystemTx   SystemTxSource
	Health     *chainstate.SystemTxHealth
}

// ProduceBlock executes spec section 4.3: it fails with SystemTxBackoff
// while the system-tx backoff window is active, then runs optional
// system-tx injection, candidate selection up to maxTxs and the block gas
// limit, and per-tx decode/execute with drop-code bookkeeping. Writes
// happen in this order: each included tx's receipt and TxLoc as it
// executes, then the state-root commit, BlockData, head, block-hash ring,
// base fee, metrics, and fee-floor re-application; BlockData is written
// after the state root because it carries it. now is the IC-analogous
// wall-clock timestamp in milliseconds the caller observed for this call.
func (p *Producer) ProduceBlock(maxTxs int, nowMs uint64) (kv.BlockData, error) {
	if p.Health != nil && p.Health.InBackoff(nowMs) {
		return kv.BlockData{}, errs.Exec(errs.ReasonSystemTxBackoff, "system tx backoff window active")
	}
	if maxTxs <= 0 || maxTxs > kv.MaxTxsPerBlock {
		maxTxs = kv.MaxTxsPerBlock
	}

	blockNumber := p.Chain.LastBlockNumber + 1
	blockEnv := executor.BlockEnv{Number: blockNumber, Timestamp: nowMs, BaseFee: p.Chain.BaseFee}

	var txIDs []kv.TxID
	var diffs []stateroot.AccountDiff
	diffByAddr := make(map[[20]byte]int)
	gasUsed := uint64(0)
	txIndex := uint32(0)

	commit := func(txID kv.TxID, result executor.ExecutionResult) {
		for _, d := range result.StateChanges {
			rec, _ := p.StateDB.GetAccount(d.Address)
			if idx, ok := diffByAddr[d.Address]; ok {
				mergeInto(&diffs[idx], d, rec)
			} else {
				diffByAddr[d.Address] = len(diffs)
				diffs = append(diffs, diffFromAccountDiff(d, rec))
			}
		}
	}

	if p.SystemTx != nil && !p.Health.InBackoff(nowMs) {
		if raw, ok := p.SystemTx.NextSystemTx(); ok {
			txID, result, ok := p.tryExecuteRaw(raw, kv.IcSynthetic, blockEnv, blockNumber, txIndex, &gasUsed)
			if ok {
				p.Health.RecordSuccess()
				commit(txID, result)
			} else {
				p.Health.RecordFailure(nowMs)
			}
		}
	}

	candidates := p.Mempool.ReadyCandidates(maxTxs)
	for _, txID := range candidates {
		if int(txIndex) >= maxTxs || gasUsed >= BlockGasLimit {
			break
		}
		stored, ok := p.Mempool.StoredTx(txID)
		if !ok {
			continue
		}

		env, err := buildTxEnv(stored, p.Recoverer, p.Chain.ChainID)
		if err != nil {
			p.Mempool.DropQueued(txID, kv.DropDecode)
			continue
		}
		if env.GasLimit > BlockGasLimit-gasUsed {
			break
		}

		receipt, result, err := p.Executor.ExecuteTx(blockEnv, env, stored.Raw, txID, blockNumber, txIndex, executor.NewKVStateDB(p.StateDB), executor.NewKVStateDB(p.StateDB))
		if err != nil {
			p.Mempool.DropQueued(txID, kv.DropExec)
			continue
		}

		p.Blocks.PutReceipt(txID, receipt)
		commit(txID, result)
		gasUsed += result.GasUsed
		txIDs = append(txIDs, txID)
		p.Mempool.MarkIncluded(txID, blockNumber, txIndex)
		p.Mempool.AdvanceSenderNonce(env.Caller, env.Nonce)
		txIndex++
	}

	root := p.Engine.ApplyBlock(diffs)

	block := kv.BlockData{
		Number:     blockNumber,
		ParentHash: p.Chain.LastBlockHash,
		Timestamp:  nowMs,
		TxIDs:      txIDs,
		StateRoot:  root,
	}
	block.TxListHash = kv.TxListHash(block.TxIDs)
	block.BlockHash = kv.ComputeBlockHash(block.ParentHash, block.Number, block.Timestamp, block.TxListHash, block.StateRoot)

	p.Blocks.PutBlock(block)
	p.Blocks.SetHead(kv.Head{Number: block.Number, BlockHash: block.BlockHash, Timestamp: block.Timestamp})
	p.StateDB.RecordBlockHash(block.Number, block.BlockHash)

	p.Chain.LastBlockNumber = block.Number
	p.Chain.LastBlockHash = block.BlockHash
	p.Chain.LastBlockTime = block.Timestamp
	p.Chain.BaseFee = chainstate.NextBaseFee(p.Chain.BaseFee, gasUsed, BlockGasLimit)
	p.Metrics.RecordBlock(block.Number, block.Timestamp, uint32(len(txIDs)), uint32(0))
	p.Mempool.ReapplyFeeFloor()

	log.Debug("producer: sealed block", "number", block.Number, "txs", len(txIDs), "gas_used", gasUsed)
	return block, nil
}

func (p *Producer) tryExecuteRaw(raw []byte, kind kv.TxKind, blockEnv executor.BlockEnv, blockNumber uint64, txIndex uint32, gasUsed *uint64) (kv.TxID, executor.ExecutionResult, bool) {
	txID := kv.IcSyntheticTxID(raw, [20]byte{}, nil, nil)
	env, err := buildIcSyntheticTxEnv(kv.StoredTx{Raw: raw, Kind: kind, CallerEVM: &[20]byte{}})
	if err != nil {
		return kv.TxID{}, executor.ExecutionResult{}, false
	}
	_, result, err := p.Executor.ExecuteTx(blockEnv, env, raw, txID, blockNumber, txIndex, executor.NewKVStateDB(p.StateDB), executor.NewKVStateDB(p.StateDB))
	if err != nil {
		return kv.TxID{}, executor.ExecutionResult{}, false
	}
	*gasUsed += result.GasUsed
	return txID, result, true
}

func diffFromAccountDiff(d executor.AccountDiff, existing kv.AccountRecord) stateroot.AccountDiff {
	sd := stateroot.AccountDiff{
		Addr:       d.Address,
		StorageSet: make(map[[32]byte][32]byte),
	}
	isEmpty := d.NewNonce == 0 && (d.NewBalance == nil || d.NewBalance.Sign() == 0) && d.NewCodeHash == ([32]byte{})
	if d.SelfDestructed || (isEmpty && d.Touched && d.NewCode == nil) {
		sd.Removed = true
		return sd
	}
	var balBytes [32]byte
	if d.NewBalance != nil {
		b := d.NewBalance.Bytes()
		copy(balBytes[32-len(b):], b)
	}
	sd.Record = kv.AccountRecord{Nonce: d.NewNonce, Balance: balBytes, CodeHash: d.NewCodeHash}
	for _, sc := range d.StorageChanges {
		if sc.Value == ([32]byte{}) {
			sd.StorageDrop = append(sd.StorageDrop, sc.Slot)
		} else {
			sd.StorageSet[sc.Slot] = sc.Value
		}
	}
	return sd
}

func mergeInto(dst *stateroot.AccountDiff, d executor.AccountDiff, existing kv.AccountRecord) {
	merged := diffFromAccountDiff(d, existing)
	dst.Removed = merged.Removed
	dst.Record = merged.Record
	for k, v := range merged.StorageSet {
		dst.StorageSet[k] = v
	}
	dst.StorageDrop = append(dst.StorageDrop, merged.StorageDrop...)
}
