// See the file LICENSE for licensing terms.

// Package stable is the engine's in-process analogue of IC orthogonal
// persistence: a frozen memory-id registry, a growable byte-region per id,
// and the slab-allocated blob arena built on top of them. No Go binding to
// ic-stable-structures exists anywhere in the retrieval pack, so this
// package owns the substrate outright rather than faking it behind an
// interface.
package stable

import "fmt"

// WasmPageSize mirrors the 64KiB Wasm page used by the original growth
// accounting so region growth increments are identical in shape.
const WasmPageSize = 65536

// Region is a single growable memory-id-addressed byte buffer. Growth always
// happens in whole pages, matching ensure_capacity/pages_required in the
// ported blob store.
type Region struct {
	id   AppMemoryID
	buf  []byte
}

func newRegion(id AppMemoryID) *Region {
	return &Region{id: id}
}

// Len returns the current logical size of the region.
func (r *Region) Len() int { return len(r.buf) }

// PagesRequired returns the number of additional whole pages needed so the
// region can hold at least target bytes.
func PagesRequired(currentLen, target int) int {
	if target <= currentLen {
		return 0
	}
	missing := target - currentLen
	pages := missing / WasmPageSize
	if missing%WasmPageSize != 0 {
		pages++
	}
	return pages
}

// EnsureCapacity grows the region, page-aligned, until it can hold at least
// target bytes.
func (r *Region) EnsureCapacity(target int) {
	pages := PagesRequired(len(r.buf), target)
	if pages == 0 {
		return
	}
	grown := make([]byte, len(r.buf)+pages*WasmPageSize)
	copy(grown, r.buf)
	r.buf = grown
}

// WriteAt writes data at offset, growing the region as needed first.
func (r *Region) WriteAt(offset uint64, data []byte) error {
	end := offset + uint64(len(data))
	if end > uint64(^uint32(0)) {
		return fmt.Errorf("stable: region %d write overflow at offset %d", r.id, offset)
	}
	r.EnsureCapacity(int(end))
	copy(r.buf[offset:end], data)
	return nil
}

// ReadAt returns a copy of length bytes starting at offset.
func (r *Region) ReadAt(offset uint64, length uint32) ([]byte, error) {
	end := offset + uint64(length)
	if end > uint64(len(r.buf)) {
		return nil, fmt.Errorf("stable: region %d read out of bounds [%d,%d) len=%d", r.id, offset, end, len(r.buf))
	}
	out := make([]byte, length)
	copy(out, r.buf[offset:end])
	return out, nil
}

// Registry owns every memory-id-addressed region, keyed by the frozen
// AppMemoryID enum. Registry is extended only by appending new ids, never
// renumbering existing ones, per the memory-id contract.
type Registry struct {
	regions map[AppMemoryID]*Region
}

// NewRegistry constructs an empty registry; regions are created lazily on
// first access so an engine instance only pays for what it uses.
func NewRegistry() *Registry {
	return &Registry{regions: make(map[AppMemoryID]*Region)}
}

// Region returns (creating if necessary) the region for the given memory id.
func (r *Registry) Region(id AppMemoryID) *Region {
	if reg, ok := r.regions[id]; ok {
		return reg
	}
	reg := newRegion(id)
	r.regions[id] = reg
	return reg
}
