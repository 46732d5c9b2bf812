// See the file LICENSE for licensing terms.

package stateroot

import (
	lru "github.com/hashicorp/golang-lru"
)

// decodedCacheSize bounds the decoded-node cache: content addressing
// means a cached entry never goes stale, so this is purely a working-set
// size, not a correctness knob.
const decodedCacheSize = 4096

// NodeDB is the content-addressed, refcounted store backing every trie
// node that was ever materialised (hashed). Nodes are never freed
// immediately on dereference; instead their refcount is decremented and,
// once it reaches zero, the hash is appended to a GC queue that DrainGC
// empties, per spec section 4.6's deferred-dereferencing design. No prune
// tick in this repository calls DrainGC.
// A small LRU of already-RLP-decoded nodes sits in front of the raw byte
// store, since a hot trie traversal re-resolves the same upper-level
// nodes (close to the root) far more often than it resolves leaves.
type NodeDB struct {
	nodes   map[[32]byte][]byte
	refcnt  map[[32]byte]uint32
	gcQueue [][32]byte

	decoded *lru.Cache
}

func NewNodeDB() *NodeDB {
	cache, _ := lru.New(decodedCacheSize)
	return &NodeDB{
		nodes:   make(map[[32]byte][]byte),
		refcnt:  make(map[[32]byte]uint32),
		decoded: cache,
	}
}

func (db *NodeDB) Get(hash [32]byte) ([]byte, bool) {
	b, ok := db.nodes[hash]
	return b, ok
}

// Resolve decodes the node stored at hash, serving from the decoded-node
// cache when present.
func (db *NodeDB) Resolve(hash [32]byte) (node, bool) {
	if db.decoded != nil {
		if v, ok := db.decoded.Get(hash); ok {
			return v.(node), true
		}
	}
	raw, ok := db.nodes[hash]
	if !ok {
		return node{}, false
	}
	n, ok := decodeNode(raw)
	if !ok {
		return node{}, false
	}
	if db.decoded != nil {
		db.decoded.Add(hash, n)
	}
	return n, true
}

// Put stores a node's RLP bytes (idempotent on the bytes) and bumps its
// refcount. Content addressing means two callers writing the same bytes
// share one physical copy.
func (db *NodeDB) Put(hash [32]byte, rlpBytes []byte) {
	if _, exists := db.nodes[hash]; !exists {
		db.nodes[hash] = rlpBytes
	}
	db.refcnt[hash]++
}

// Deref decrements a node's refcount; at zero it is queued for GC rather
// than deleted in place, so a concurrent reader mid-traversal (there is
// none, single-threaded, but the journal-then-apply split still wants
// this) never sees a dangling reference within the same tick.
func (db *NodeDB) Deref(hash [32]byte) {
	if db.refcnt[hash] == 0 {
		return
	}
	db.refcnt[hash]--
	if db.refcnt[hash] == 0 {
		db.gcQueue = append(db.gcQueue, hash)
	}
}

// DrainGC physically deletes up to maxOps queued nodes whose refcount is
// still zero (a later Put before the drain runs can resurrect one),
// returning how many were actually reclaimed.
func (db *NodeDB) DrainGC(maxOps int) int {
	reclaimed := 0
	remaining := db.gcQueue[:0]
	for _, h := range db.gcQueue {
		if reclaimed >= maxOps {
			remaining = append(remaining, h)
			continue
		}
		if db.refcnt[h] == 0 {
			delete(db.nodes, h)
			delete(db.refcnt, h)
			reclaimed++
		}
	}
	db.gcQueue = remaining
	return reclaimed
}

func (db *NodeDB) GCQueueLen() int { return len(db.gcQueue) }

func (db *NodeDB) NodeCount() int { return len(db.nodes) }
