// See the file LICENSE for licensing terms.

package mempool

import (
	"encoding/binary"
	"math/big"

	"github.com/icevm/execution-core/internal/chainstate"
	"github.com/icevm/execution-core/internal/errs"
	"github.com/icevm/execution-core/internal/kv"
	"github.com/icevm/execution-core/internal/stable"
	"github.com/icevm/execution-core/log"
)

type seqKey [40]byte // seq(8) || tx_id(32), ascending by seq then tx_id

func newSeqKey(seq uint64, id kv.TxID) seqKey {
	var k seqKey
	binary.BigEndian.PutUint64(k[0:8], seq)
	copy(k[8:40], id[:])
	return k
}

type feeKey [48]byte // fee(16) || tx_id(32), ascending by fee (lowest first)

func newFeeKey(fee *big.Int, id kv.TxID) feeKey {
	var k feeKey
	b := fee.Bytes()
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(k[16-len(b):16], b)
	copy(k[16:48], id[:])
	return k
}

// Mempool owns the seven derived indices and the tx/loc stores, exactly as
// enumerated in spec section 3.
type Mempool struct {
	chain   *chainstate.ChainState
	metrics *chainstate.MetricsState

	txStore map[kv.TxID]kv.StoredTx
	txLoc   map[kv.TxID]kv.TxLoc

	pendingBySenderNonce *stable.OrderedMap[kv.SenderNonceKey, kv.TxID]
	pendingMetaByTxID    map[kv.TxID]kv.SenderNonceKey
	pendingMinNonce      map[kv.SenderKey]uint64

	readyQueue       *stable.OrderedMap[kv.ReadyKey, kv.TxID]
	readyKeyByTxID   map[kv.TxID]kv.ReadyKey
	readyBySeq       *stable.OrderedMap[seqKey, kv.TxID]

	principalPendingCount map[kv.CallerKey]uint32
	pendingFeeIndex       *stable.OrderedMap[feeKey, kv.TxID]
	feeKeyByTxID          map[kv.TxID]feeKey

	senderExpectedNonce map[kv.SenderKey]uint64

	droppedRing     *kv.QueueMeta
	droppedEntries  map[uint64]kv.TxID
}

func New(chain *chainstate.ChainState, metrics *chainstate.MetricsState) *Mempool {
	return &Mempool{
		chain:   chain,
		metrics: metrics,

		txStore: make(map[kv.TxID]kv.StoredTx),
		txLoc:   make(map[kv.TxID]kv.TxLoc),

		pendingBySenderNonce: stable.NewOrderedMap[kv.SenderNonceKey, kv.TxID](func(k kv.SenderNonceKey) []byte { return k.Bytes() }),
		pendingMetaByTxID:    make(map[kv.TxID]kv.SenderNonceKey),
		pendingMinNonce:      make(map[kv.SenderKey]uint64),

		readyQueue:     stable.NewOrderedMap[kv.ReadyKey, kv.TxID](func(k kv.ReadyKey) []byte { return k.Bytes() }),
		readyKeyByTxID: make(map[kv.TxID]kv.ReadyKey),
		readyBySeq:     stable.NewOrderedMap[seqKey, kv.TxID](func(k seqKey) []byte { return k[:] }),

		principalPendingCount: make(map[kv.CallerKey]uint32),
		pendingFeeIndex:       stable.NewOrderedMap[feeKey, kv.TxID](func(k feeKey) []byte { return k[:] }),
		feeKeyByTxID:          make(map[kv.TxID]feeKey),

		senderExpectedNonce: make(map[kv.SenderKey]uint64),

		droppedRing:    &kv.QueueMeta{},
		droppedEntries: make(map[uint64]kv.TxID),
	}
}

func senderKeyOf(addr [20]byte) kv.SenderKey { return kv.SenderKey(addr) }

// Submit runs the full admission pipeline of spec section 4.2 over an
// already-decoded, already-sized transaction and its raw bytes, returning
// the assigned TxId on success.
func (m *Mempool) Submit(raw []byte, d DecodedTx) (kv.TxID, error) {
	if len(raw) > kv.MaxTxSize {
		return kv.TxID{}, errs.New(errs.TxTooLarge, "raw bytes exceed MAX_TX_SIZE")
	}

	var txID kv.TxID
	if d.Kind == kv.EthSigned {
		txID = kv.EthTxID(raw)
	} else {
		txID = kv.IcSyntheticTxID(raw, d.CallerEVM, d.CanisterID, d.CallerPrincipal)
	}
	if _, exists := m.txStore[txID]; exists {
		return kv.TxID{}, errs.New(errs.TxAlreadySeen, "duplicate tx id")
	}

	effFee, ok := d.EffectiveGasPrice(m.chain.BaseFee)
	if !ok {
		return kv.TxID{}, errs.New(errs.InvalidFee, "effective gas price undefined")
	}
	baseFee := new(big.Int).SetUint64(m.chain.BaseFee)
	minPriority := new(big.Int).SetUint64(m.chain.MinPriorityFee)
	minGasPrice := new(big.Int).SetUint64(m.chain.MinGasPrice)

	if d.IsDynamicFee {
		if d.MaxFeePerGas.Cmp(baseFee) < 0 || d.MaxFeePerGas.Cmp(d.MaxPriorityFeePerGas) < 0 {
			return kv.TxID{}, errs.New(errs.InvalidFee, "max_fee below base_fee or max_priority")
		}
		if d.MaxPriorityFeePerGas.Cmp(minPriority) < 0 {
			return kv.TxID{}, errs.New(errs.InvalidFee, "max_priority below floor")
		}
	} else {
		if d.GasPrice.Cmp(minGasPrice) < 0 {
			return kv.TxID{}, errs.New(errs.InvalidFee, "gas_price below floor")
		}
	}

	sk := senderKeyOf(d.Sender)
	expected := m.senderExpectedNonce[sk]
	snk := kv.NewSenderNonceKey(d.Sender, d.Nonce)

	switch {
	case d.Nonce < expected:
		return kv.TxID{}, errs.New(errs.NonceTooLow, "nonce below expected")
	case d.Nonce > expected+MaxNonceWindow:
		return kv.TxID{}, errs.New(errs.NonceGap, "nonce too far ahead")
	}

	if existingID, exists := m.pendingBySenderNonce.Get(snk); exists {
		return m.replace(raw, d, txID, existingID, effFee)
	}

	// Capacity gates, in order: global, per-principal, per-sender.
	if m.pendingBySenderNonce.Len() >= MaxPendingGlobal {
		if !m.evictLowestFeeIfBeaten(effFee) {
			return kv.TxID{}, errs.New(errs.QueueFull, "global pending queue full")
		}
	}
	ck := kv.NewCallerKey(d.CallerPrincipal)
	if m.principalPendingCount[ck] >= MaxPendingPerPrincipal {
		return kv.TxID{}, errs.New(errs.PrincipalQueueFull, "principal pending queue full")
	}
	senderCount := m.countPendingForSender(sk)
	if senderCount >= MaxPendingPerSender {
		return kv.TxID{}, errs.New(errs.SenderQueueFull, "sender pending queue full")
	}

	m.admit(raw, d, txID, effFee)
	return txID, nil
}

func (m *Mempool) countPendingForSender(sk kv.SenderKey) int {
	count := 0
	m.pendingBySenderNonce.Range(func(k kv.SenderNonceKey, _ kv.TxID) bool {
		var ks kv.SenderKey
		copy(ks[:], k[0:20])
		if ks == sk {
			count++
		}
		return true
	})
	return count
}

// evictLowestFeeIfBeaten evicts the pending tx with the lowest fee if
// candidateFee strictly exceeds it, making room for the new admission.
func (m *Mempool) evictLowestFeeIfBeaten(candidateFee *big.Int) bool {
	_, lowestID, ok := m.pendingFeeIndex.First()
	if !ok {
		return false
	}
	lowestKey := m.feeKeyByTxID[lowestID]
	lowestFee := new(big.Int).SetBytes(lowestKey[0:16])
	if candidateFee.Cmp(lowestFee) <= 0 {
		return false
	}
	m.dropPending(lowestID, kv.DropReplaced)
	return true
}

func (m *Mempool) admit(raw []byte, d DecodedTx, txID kv.TxID, effFee *big.Int) {
	seq := m.chain.NextSeq()

	// A legacy tx keeps its gas price in both fee fields.
	maxFee, maxPrio := d.MaxFeePerGas, d.MaxPriorityFeePerGas
	if !d.IsDynamicFee {
		maxFee, maxPrio = d.GasPrice, d.GasPrice
	}

	stored := kv.StoredTx{
		Version:              kv.StoredTxVersion,
		TxID:                 txID,
		Kind:                 d.Kind,
		Raw:                  raw,
		CallerPrincipal:      d.CallerPrincipal,
		CanisterID:           d.CanisterID,
		MaxFeePerGas:         u128ToBytes(maxFee),
		MaxPriorityFeePerGas: u128ToBytes(maxPrio),
		IsDynamicFee:         d.IsDynamicFee,
	}
	if d.Kind == kv.IcSynthetic {
		callerEVM := d.CallerEVM
		stored.CallerEVM = &callerEVM
	}

	m.txStore[txID] = stored
	m.txLoc[txID] = kv.QueuedLoc(seq)

	snk := kv.NewSenderNonceKey(d.Sender, d.Nonce)
	m.pendingBySenderNonce.Insert(snk, txID)
	m.pendingMetaByTxID[txID] = snk

	sk := senderKeyOf(d.Sender)
	if cur, ok := m.pendingMinNonce[sk]; !ok || d.Nonce < cur {
		m.pendingMinNonce[sk] = d.Nonce
	}

	rk := kv.NewReadyKey(u128ToBytes(maxFee), u128ToBytes(maxPrio), seq, txID)
	m.readyQueue.Insert(rk, txID)
	m.readyKeyByTxID[txID] = rk
	m.readyBySeq.Insert(newSeqKey(seq, txID), txID)

	ck := kv.NewCallerKey(d.CallerPrincipal)
	m.principalPendingCount[ck]++

	fk := newFeeKey(effFee, txID)
	m.pendingFeeIndex.Insert(fk, txID)
	m.feeKeyByTxID[txID] = fk

	m.metrics.RecordSubmission()
	log.Trace("mempool: admitted tx", "tx_id", txID.String(), "seq", seq)
}

func (m *Mempool) replace(raw []byte, d DecodedTx, newID, oldID kv.TxID, newEffFee *big.Int) (kv.TxID, error) {
	oldStored, ok := m.txStore[oldID]
	if !ok {
		return kv.TxID{}, errs.New(errs.Internal, "replacement target missing from tx store")
	}
	oldDecoded := DecodedTx{
		IsDynamicFee:         oldStored.IsDynamicFee,
		MaxFeePerGas:         new(big.Int).SetBytes(oldStored.MaxFeePerGas[:]),
		MaxPriorityFeePerGas: new(big.Int).SetBytes(oldStored.MaxPriorityFeePerGas[:]),
		GasPrice:             new(big.Int).SetBytes(oldStored.MaxFeePerGas[:]),
	}
	oldEffFee, ok := oldDecoded.EffectiveGasPrice(m.chain.BaseFee)
	if !ok || newEffFee.Cmp(oldEffFee) <= 0 {
		return kv.TxID{}, errs.New(errs.NonceConflict, "replacement fee does not strictly exceed existing tx")
	}
	m.dropPending(oldID, kv.DropReplaced)
	m.admit(raw, d, newID, newEffFee)
	return newID, nil
}

// dropPending removes a Queued tx from all seven indices and records it as
// Dropped with the given code, bounded by the dropped-ring capacity.
func (m *Mempool) dropPending(id kv.TxID, code kv.DropCode) {
	snk, ok := m.pendingMetaByTxID[id]
	if !ok {
		return
	}
	var sk kv.SenderKey
	copy(sk[:], snk[0:20])

	m.pendingBySenderNonce.Remove(snk)
	delete(m.pendingMetaByTxID, id)

	if rk, ok := m.readyKeyByTxID[id]; ok {
		m.readyQueue.Remove(rk)
		delete(m.readyKeyByTxID, id)
	}
	if stored, ok := m.txStore[id]; ok {
		if loc, ok := m.txLoc[id]; ok && loc.Kind == kv.Queued {
			m.readyBySeq.Remove(newSeqKey(loc.Seq, id))
		}
		ck := kv.NewCallerKey(stored.CallerPrincipal)
		if c := m.principalPendingCount[ck]; c > 0 {
			m.principalPendingCount[ck] = c - 1
		}
	}
	if fk, ok := m.feeKeyByTxID[id]; ok {
		m.pendingFeeIndex.Remove(fk)
		delete(m.feeKeyByTxID, id)
	}

	m.txLoc[id] = kv.DroppedLoc(code)
	m.pushDropped(id)
	m.metrics.RecordDrop(int(code))
}

// pushDropped enforces the DroppedRingCapacity bound (testable property
// 13) by evicting the oldest dropped tx's StoredTx and TxLoc once the ring
// wraps.
func (m *Mempool) pushDropped(id kv.TxID) {
	slot := m.droppedRing.Push()
	m.droppedEntries[slot] = id

	for m.droppedRing.Len() > kv.DroppedRingCapacity {
		oldSlot, ok := m.droppedRing.Pop()
		if !ok {
			break
		}
		oldID := m.droppedEntries[oldSlot]
		delete(m.droppedEntries, oldSlot)
		delete(m.txStore, oldID)
		delete(m.txLoc, oldID)
	}
}

// MarkIncluded transitions a Queued tx to Included once the producer has
// executed it, removing it from every pending index without touching the
// dropped ring.
func (m *Mempool) MarkIncluded(id kv.TxID, blockNumber uint64, txIndex uint32) {
	snk, ok := m.pendingMetaByTxID[id]
	if ok {
		m.pendingBySenderNonce.Remove(snk)
		delete(m.pendingMetaByTxID, id)
	}
	if rk, ok := m.readyKeyByTxID[id]; ok {
		m.readyQueue.Remove(rk)
		delete(m.readyKeyByTxID, id)
	}
	if loc, ok := m.txLoc[id]; ok && loc.Kind == kv.Queued {
		m.readyBySeq.Remove(newSeqKey(loc.Seq, id))
	}
	if stored, ok := m.txStore[id]; ok {
		ck := kv.NewCallerKey(stored.CallerPrincipal)
		if c := m.principalPendingCount[ck]; c > 0 {
			m.principalPendingCount[ck] = c - 1
		}
	}
	if fk, ok := m.feeKeyByTxID[id]; ok {
		m.pendingFeeIndex.Remove(fk)
		delete(m.feeKeyByTxID, id)
	}
	m.txLoc[id] = kv.IncludedLoc(blockNumber, txIndex)
	m.metrics.RecordIncluded()
}

// DropQueued is the producer-facing hook for step 3 of spec section 4.3:
// drop a still-Queued candidate pulled from the ready queue (decode
// failure, unaffordable fee) without touching the dropped-ring bookkeeping
// twice.
func (m *Mempool) DropQueued(id kv.TxID, code kv.DropCode) { m.dropPending(id, code) }

// ReadyCandidates returns up to limit tx ids from the ready queue in key
// order, without removing them; the producer removes each as it commits.
func (m *Mempool) ReadyCandidates(limit int) []kv.TxID {
	var out []kv.TxID
	m.readyQueue.Range(func(_ kv.ReadyKey, id kv.TxID) bool {
		out = append(out, id)
		return len(out) < limit
	})
	return out
}

// StoredTx looks up the immutable envelope for a tx id.
func (m *Mempool) StoredTx(id kv.TxID) (kv.StoredTx, bool) {
	tx, ok := m.txStore[id]
	return tx, ok
}

// Loc looks up the current lifecycle state for a tx id.
func (m *Mempool) Loc(id kv.TxID) (kv.TxLoc, bool) {
	loc, ok := m.txLoc[id]
	return loc, ok
}

// AdvanceSenderNonce sets sender_expected_nonce[s] = max(existing, nonce+1),
// called once per included sender after a block commits.
func (m *Mempool) AdvanceSenderNonce(sender [20]byte, nonce uint64) {
	sk := senderKeyOf(sender)
	if cur := m.senderExpectedNonce[sk]; nonce+1 > cur {
		m.senderExpectedNonce[sk] = nonce + 1
	}
}

// ExpectedNonce returns the current expected nonce for a sender.
func (m *Mempool) ExpectedNonce(sender [20]byte) uint64 {
	return m.senderExpectedNonce[senderKeyOf(sender)]
}

// QueueSnapshotItem is one entry of a get_queue_snapshot page.
type QueueSnapshotItem struct {
	Seq  uint64
	TxID kv.TxID
}

// QueueSnapshot returns up to limit items from ready_by_seq starting at
// cursor (inclusive), plus the next cursor: the seq of the first item not
// returned (nil if exhausted).
func (m *Mempool) QueueSnapshot(limit int, cursor *uint64) ([]QueueSnapshotItem, *uint64, error) {
	if limit <= 0 {
		return nil, nil, errs.New(errs.InvalidLimit, "limit must be positive")
	}
	if limit > MaxQueueSnapshotLimit {
		limit = MaxQueueSnapshotLimit
	}
	var items []QueueSnapshotItem
	var next *uint64
	m.readyBySeq.Range(func(k seqKey, id kv.TxID) bool {
		seq := binary.BigEndian.Uint64(k[0:8])
		if cursor != nil && seq < *cursor {
			return true
		}
		if len(items) >= limit {
			n := seq
			next = &n
			return false
		}
		items = append(items, QueueSnapshotItem{Seq: seq, TxID: id})
		return true
	})
	return items, next, nil
}

// ReapplyFeeFloor re-examines every Queued tx after a base_fee change and
// drops any whose effective fee no longer covers base_fee+min_priority,
// per spec section 4.3's "re-examined at next selection" rule.
func (m *Mempool) ReapplyFeeFloor() {
	var toDrop []kv.TxID
	m.readyQueue.Range(func(_ kv.ReadyKey, id kv.TxID) bool {
		stored, ok := m.txStore[id]
		if !ok {
			return true
		}
		d := DecodedTx{
			IsDynamicFee:         stored.IsDynamicFee,
			MaxFeePerGas:         new(big.Int).SetBytes(stored.MaxFeePerGas[:]),
			MaxPriorityFeePerGas: new(big.Int).SetBytes(stored.MaxPriorityFeePerGas[:]),
			GasPrice:             new(big.Int).SetBytes(stored.MaxFeePerGas[:]),
		}
		eff, ok := d.EffectiveGasPrice(m.chain.BaseFee)
		if !ok {
			toDrop = append(toDrop, id)
			return true
		}
		floor := new(big.Int).SetUint64(m.chain.BaseFee + m.chain.MinPriorityFee)
		if eff.Cmp(floor) < 0 {
			toDrop = append(toDrop, id)
		}
		return true
	})
	for _, id := range toDrop {
		m.dropPending(id, kv.DropInvalidFee)
	}
}
