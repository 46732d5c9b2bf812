// See the file LICENSE for licensing terms.

// Package stateroot implements the incremental Merkle-Patricia trie over
// accounts and per-account storage described in spec section 4.6: a
// content-addressed, refcounted node database, deferred GC, and the
// per-account check behind sampled full-scan verification. The migration
// state machine that drives rebuilds lives in internal/migration.
package stateroot

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// node is the trie node algebra: {Leaf, Extension, Branch}. Only one of
// Leaf/Extension/Branch is non-nil at a time; this mirrors the RLP-tagged
// variant spec section 4.6 names, encoded as a 2-element list (leaf/ext)
// or a 17-element list (branch) to stay compatible with standard
// hex-prefix MPT framing.
type node struct {
	Leaf      *leafNode
	Extension *extensionNode
	Branch    *branchNode
}

type leafNode struct {
	KeyEnd []byte // remaining nibbles
	Value  []byte
}

type extensionNode struct {
	KeyPart []byte // shared nibbles
	Child   ref
}

type branchNode struct {
	Children [16]ref
	Value    []byte // value stored at this branch, if a key terminates here
}

// ref is a reference to a child node: either inlined raw RLP (when the
// encoding is under 32 bytes) or a 32-byte hash into the node database.
// Root nodes are always materialised, even when they would otherwise
// inline, per spec section 4.6.
type ref struct {
	inline []byte
	hash   [32]byte
	isHash bool
}

func emptyRef() ref { return ref{} }

func (r ref) isEmpty() bool { return !r.isHash && len(r.inline) == 0 }

// rawEncode produces the canonical RLP list for a node, used both to
// compute its hash and to decide whether it can be inlined.
func rawEncode(n node) []byte {
	switch {
	case n.Leaf != nil:
		b, _ := rlp.EncodeToBytes([]interface{}{hexToCompact(n.Leaf.KeyEnd, true), n.Leaf.Value})
		return b
	case n.Extension != nil:
		childBytes := refBytes(n.Extension.Child)
		b, _ := rlp.EncodeToBytes([]interface{}{hexToCompact(n.Extension.KeyPart, false), childBytes})
		return b
	case n.Branch != nil:
		items := make([]interface{}, 17)
		for i := 0; i < 16; i++ {
			items[i] = refBytes(n.Branch.Children[i])
		}
		if n.Branch.Value != nil {
			items[16] = n.Branch.Value
		} else {
			items[16] = []byte{}
		}
		b, _ := rlp.EncodeToBytes(items)
		return b
	default:
		return []byte{}
	}
}

func refBytes(r ref) []byte {
	if r.isEmpty() {
		return []byte{}
	}
	if r.isHash {
		return r.hash[:]
	}
	return r.inline
}

// makeRef wraps an encoded node, inlining it when under 32 bytes (except
// the caller-designated root, which always materialises).
func makeRef(encoded []byte, forceHash bool, store func(hash [32]byte, rlpBytes []byte)) ref {
	if len(encoded) < 32 && !forceHash {
		return ref{inline: encoded}
	}
	h := crypto.Keccak256Hash(encoded)
	var hb [32]byte
	copy(hb[:], h[:])
	store(hb, encoded)
	return ref{hash: hb, isHash: true}
}

// hexToCompact implements the standard hex-prefix encoding used to flag a
// nibble path as a leaf vs. extension and to pad it to a whole number of
// bytes.
func hexToCompact(nibbles []byte, isLeaf bool) []byte {
	term := byte(0)
	if isLeaf {
		term = 2
	}
	oddLen := len(nibbles) % 2
	flag := term + byte(oddLen)

	var out []byte
	if oddLen == 1 {
		out = append(out, flag<<4|nibbles[0])
		nibbles = nibbles[1:]
	} else {
		out = append(out, flag<<4)
	}
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, nibbles[i]<<4|nibbles[i+1])
	}
	return out
}

// keyToNibbles expands a byte key into its nibble sequence.
func keyToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	return nibbles
}

// compactToHex reverses hexToCompact, reporting whether the decoded path
// terminates at a leaf.
func compactToHex(compact []byte) (nibbles []byte, isLeaf bool) {
	if len(compact) == 0 {
		return nil, false
	}
	flag := compact[0] >> 4
	isLeaf = flag&2 != 0
	odd := flag&1 != 0
	if odd {
		nibbles = append(nibbles, compact[0]&0x0f)
	}
	for _, b := range compact[1:] {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles, isLeaf
}

// decodeNode parses a node's canonical RLP encoding, resolving child refs
// that are embedded raw rather than hashed.
func decodeNode(encoded []byte) (node, bool) {
	var items [][]byte
	if err := rlp.DecodeBytes(encoded, &items); err != nil {
		return node{}, false
	}
	switch len(items) {
	case 2:
		path, isLeaf := compactToHex(items[0])
		if isLeaf {
			return node{Leaf: &leafNode{KeyEnd: path, Value: items[1]}}, true
		}
		return node{Extension: &extensionNode{KeyPart: path, Child: decodeRef(items[1])}}, true
	case 17:
		b := &branchNode{}
		for i := 0; i < 16; i++ {
			b.Children[i] = decodeRef(items[i])
		}
		if len(items[16]) > 0 {
			b.Value = items[16]
		}
		return node{Branch: b}, true
	default:
		return node{}, false
	}
}

func decodeRef(b []byte) ref {
	if len(b) == 0 {
		return emptyRef()
	}
	if len(b) == 32 {
		var h [32]byte
		copy(h[:], b)
		return ref{hash: h, isHash: true}
	}
	return ref{inline: b}
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
