// See the file LICENSE for licensing terms.

package stable

// AppMemoryID is a frozen memory-id assignment. Values are never renumbered;
// new regions may only be appended after the last assigned id, per spec
// section 6 ("Memory-id registry values 0-52 are assigned; new regions may
// only be appended").
type AppMemoryID uint8

const (
	MemBlobArena AppMemoryID = iota // 0
	MemAllocTable
	MemFreeList8K
	MemFreeList16K
	MemFreeList32K
	MemFreeList64K
	MemFreeList128K
	MemFreeList256K
	MemFreeList512K
	MemFreeList1M // 9
	MemFreeList2M
	MemFreeList4M
	MemCorruptLog
	MemAccounts
	MemStorage
	MemCode
	MemTxStore
	MemTxIndex
	MemTxLoc
	MemBlocks // 19
	MemReceipts
	MemHead
	MemChainState
	MemOpsConfig
	MemOpsState
	MemMetrics
	MemPruneConfig
	MemPruneState
	MemPruneJournal
	MemQueueMeta // 29
	MemPendingBySenderNonce
	MemPendingMetaByTxID
	MemPendingMinNonce
	MemReadyQueue
	MemReadyKeyByTxID
	MemReadyBySeq
	MemPrincipalPendingCount
	MemPendingFeeIndex
	MemSenderExpectedNonce
	MemDroppedRing // 39
	MemSystemTxHealth
	MemL1BlockInfo
	MemStateStorageRoots
	MemStateRootNodeDB
	MemStateRootAccountLeafHash
	MemStateRootGCQueue
	MemStateRootGCState
	MemStateRootMeta
	MemStateRootMigration
	MemStateRootMetrics // 49
	MemSchemaMigration
	MemSeenTx
	MemMinerAllowlist // 52
)

// NumAppMemoryIDs is the count of frozen ids, used only for range sanity
// checks in tests.
const NumAppMemoryIDs = int(MemMinerAllowlist) + 1
