// See the file LICENSE for licensing terms.

package stateroot

// Trie is an incremental Merkle-Patricia trie: Put/Delete only re-encode
// and re-hash the nodes along the changed path, dereferencing every node
// the path replaces so NodeDB's refcounts stay accurate. The empty trie's
// root hash is the all-zero hash, not keccak(RLP("")), which keeps an
// empty storage trie's root representable without a sentinel.
type Trie struct {
	root ref
	db   *NodeDB
}

func NewTrie(db *NodeDB) *Trie { return &Trie{db: db} }

// OpenTrie reopens a previously committed trie by its root hash.
func OpenTrie(db *NodeDB, root [32]byte) *Trie {
	if root == ([32]byte{}) {
		return &Trie{db: db}
	}
	return &Trie{db: db, root: ref{hash: root, isHash: true}}
}

// Root returns the trie's current root hash, forcing the root node to be
// materialised (never inlined) even if it would otherwise fit in 31 bytes.
func (t *Trie) Root() [32]byte {
	if t.root.isEmpty() {
		return [32]byte{}
	}
	if t.root.isHash {
		return t.root.hash
	}
	n, ok := decodeNode(t.root.inline)
	if !ok {
		return [32]byte{}
	}
	encoded := rawEncode(n)
	newRoot := makeRef(encoded, true, t.db.Put)
	t.root = newRoot
	return newRoot.hash
}

func (t *Trie) resolve(r ref) (node, bool) {
	if r.isEmpty() {
		return node{}, false
	}
	if r.isHash {
		return t.db.Resolve(r.hash)
	}
	return decodeNode(r.inline)
}

func (t *Trie) derefIfHash(r ref) {
	if r.isHash {
		t.db.Deref(r.hash)
	}
}

// Get returns the value stored at key, if any.
func (t *Trie) Get(key []byte) ([]byte, bool) {
	return t.get(t.root, keyToNibbles(key))
}

func (t *Trie) get(r ref, path []byte) ([]byte, bool) {
	if r.isEmpty() {
		return nil, false
	}
	n, ok := t.resolve(r)
	if !ok {
		return nil, false
	}
	switch {
	case n.Leaf != nil:
		if string(n.Leaf.KeyEnd) == string(path) {
			return n.Leaf.Value, true
		}
		return nil, false
	case n.Extension != nil:
		kp := n.Extension.KeyPart
		if len(path) < len(kp) || string(path[:len(kp)]) != string(kp) {
			return nil, false
		}
		return t.get(n.Extension.Child, path[len(kp):])
	case n.Branch != nil:
		if len(path) == 0 {
			if n.Branch.Value != nil {
				return n.Branch.Value, true
			}
			return nil, false
		}
		return t.get(n.Branch.Children[path[0]], path[1:])
	default:
		return nil, false
	}
}

// Put inserts or overwrites the value at key.
func (t *Trie) Put(key, value []byte) {
	t.root = t.put(t.root, keyToNibbles(key), value)
}

func (t *Trie) put(r ref, path []byte, value []byte) ref {
	if r.isEmpty() {
		return t.store(node{Leaf: &leafNode{KeyEnd: path, Value: value}})
	}
	n, ok := t.resolve(r)
	if !ok {
		return t.store(node{Leaf: &leafNode{KeyEnd: path, Value: value}})
	}
	t.derefIfHash(r)

	switch {
	case n.Leaf != nil:
		return t.putIntoLeaf(n.Leaf, path, value)
	case n.Extension != nil:
		return t.putIntoExtension(n.Extension, path, value)
	case n.Branch != nil:
		return t.putIntoBranch(n.Branch, path, value)
	default:
		return t.store(node{Leaf: &leafNode{KeyEnd: path, Value: value}})
	}
}

func (t *Trie) putIntoLeaf(l *leafNode, path, value []byte) ref {
	cp := commonPrefixLen(l.KeyEnd, path)
	if cp == len(l.KeyEnd) && cp == len(path) {
		return t.store(node{Leaf: &leafNode{KeyEnd: path, Value: value}})
	}

	branch := &branchNode{}
	if cp == len(l.KeyEnd) {
		branch.Value = l.Value
	} else {
		branch.Children[l.KeyEnd[cp]] = t.store(node{Leaf: &leafNode{KeyEnd: l.KeyEnd[cp+1:], Value: l.Value}})
	}
	if cp == len(path) {
		branch.Value = value
	} else {
		branch.Children[path[cp]] = t.store(node{Leaf: &leafNode{KeyEnd: path[cp+1:], Value: value}})
	}

	branchRef := t.store(node{Branch: branch})
	if cp == 0 {
		return branchRef
	}
	return t.store(node{Extension: &extensionNode{KeyPart: append([]byte{}, path[:cp]...), Child: branchRef}})
}

func (t *Trie) putIntoExtension(e *extensionNode, path, value []byte) ref {
	cp := commonPrefixLen(e.KeyPart, path)
	if cp == len(e.KeyPart) {
		newChild := t.put(e.Child, path[cp:], value)
		return t.store(node{Extension: &extensionNode{KeyPart: e.KeyPart, Child: newChild}})
	}

	branch := &branchNode{}
	if cp == len(path) {
		branch.Value = value
	} else {
		branch.Children[path[cp]] = t.store(node{Leaf: &leafNode{KeyEnd: path[cp+1:], Value: value}})
	}

	remaining := e.KeyPart[cp+1:]
	var childRef ref
	if len(remaining) == 0 {
		childRef = e.Child
	} else {
		childRef = t.store(node{Extension: &extensionNode{KeyPart: remaining, Child: e.Child}})
	}
	branch.Children[e.KeyPart[cp]] = childRef

	branchRef := t.store(node{Branch: branch})
	if cp == 0 {
		return branchRef
	}
	return t.store(node{Extension: &extensionNode{KeyPart: append([]byte{}, path[:cp]...), Child: branchRef}})
}

func (t *Trie) putIntoBranch(b *branchNode, path, value []byte) ref {
	if len(path) == 0 {
		return t.store(node{Branch: &branchNode{Children: b.Children, Value: value}})
	}
	newBranch := *b
	newBranch.Children[path[0]] = t.put(b.Children[path[0]], path[1:], value)
	return t.store(node{Branch: &newBranch})
}

// Delete removes key, if present, collapsing branches/extensions that
// become redundant.
func (t *Trie) Delete(key []byte) {
	t.root, _ = t.delete(t.root, keyToNibbles(key))
}

func (t *Trie) delete(r ref, path []byte) (ref, bool) {
	if r.isEmpty() {
		return r, false
	}
	n, ok := t.resolve(r)
	if !ok {
		return r, false
	}

	switch {
	case n.Leaf != nil:
		if string(n.Leaf.KeyEnd) != string(path) {
			return r, false
		}
		t.derefIfHash(r)
		return emptyRef(), true

	case n.Extension != nil:
		kp := n.Extension.KeyPart
		if len(path) < len(kp) || string(path[:len(kp)]) != string(kp) {
			return r, false
		}
		newChild, changed := t.delete(n.Extension.Child, path[len(kp):])
		if !changed {
			return r, false
		}
		t.derefIfHash(r)
		return t.collapseExtension(kp, newChild), true

	case n.Branch != nil:
		t.derefIfHash(r)
		newBranch := *n.Branch
		if len(path) == 0 {
			newBranch.Value = nil
		} else {
			newChild, changed := t.delete(n.Branch.Children[path[0]], path[1:])
			if !changed {
				return r, false
			}
			newBranch.Children[path[0]] = newChild
		}
		return t.collapseBranch(&newBranch), true

	default:
		return r, false
	}
}

// collapseExtension re-wraps a surviving child, merging two consecutive
// extensions and dropping the extension entirely if its child vanished.
func (t *Trie) collapseExtension(keyPart []byte, child ref) ref {
	if child.isEmpty() {
		return emptyRef()
	}
	childNode, ok := t.resolve(child)
	if ok && childNode.Extension != nil {
		t.derefIfHash(child)
		merged := append(append([]byte{}, keyPart...), childNode.Extension.KeyPart...)
		return t.store(node{Extension: &extensionNode{KeyPart: merged, Child: childNode.Extension.Child}})
	}
	return t.store(node{Extension: &extensionNode{KeyPart: keyPart, Child: child}})
}

// collapseBranch reduces a branch with at most one remaining child (and no
// value) into a leaf or extension, matching standard MPT normalization so
// identical key/value sets always hash to the same root.
func (t *Trie) collapseBranch(b *branchNode) ref {
	count := 0
	onlyIdx := -1
	for i, c := range b.Children {
		if !c.isEmpty() {
			count++
			onlyIdx = i
		}
	}
	if count == 0 {
		if b.Value != nil {
			return t.store(node{Leaf: &leafNode{KeyEnd: nil, Value: b.Value}})
		}
		return emptyRef()
	}
	if count == 1 && b.Value == nil {
		childRef := b.Children[onlyIdx]
		childNode, ok := t.resolve(childRef)
		if !ok {
			return t.store(node{Branch: b})
		}
		t.derefIfHash(childRef)
		switch {
		case childNode.Leaf != nil:
			merged := append([]byte{byte(onlyIdx)}, childNode.Leaf.KeyEnd...)
			return t.store(node{Leaf: &leafNode{KeyEnd: merged, Value: childNode.Leaf.Value}})
		case childNode.Extension != nil:
			merged := append([]byte{byte(onlyIdx)}, childNode.Extension.KeyPart...)
			return t.store(node{Extension: &extensionNode{KeyPart: merged, Child: childNode.Extension.Child}})
		default:
			return t.store(node{Extension: &extensionNode{KeyPart: []byte{byte(onlyIdx)}, Child: childRef}})
		}
	}
	return t.store(node{Branch: b})
}

// DropAll recursively dereferences every node in the trie, used when an
// account's entire storage trie is discarded on selfdestruct. Recursion
// into a hashed child only continues once its refcount reaches zero,
// since an inlined subtree can in principle be shared by more than one
// parent reference within the same commit.
func (t *Trie) DropAll() {
	t.dropSubtree(t.root)
	t.root = emptyRef()
}

func (t *Trie) dropSubtree(r ref) {
	if r.isEmpty() {
		return
	}
	n, ok := t.resolve(r)
	if !ok {
		return
	}
	wasShared := false
	if r.isHash {
		before := t.db.refcnt[r.hash]
		t.derefIfHash(r)
		wasShared = before > 1
	}
	if wasShared {
		return
	}
	switch {
	case n.Extension != nil:
		t.dropSubtree(n.Extension.Child)
	case n.Branch != nil:
		for _, c := range n.Branch.Children {
			t.dropSubtree(c)
		}
	}
}

func (t *Trie) store(n node) ref {
	encoded := rawEncode(n)
	return makeRef(encoded, false, t.db.Put)
}
