// See the file LICENSE for licensing terms.

package stable

import (
	"fmt"

	"github.com/icevm/execution-core/internal/errs"
)

// BlobError classifies a BlobStore physical-persistence failure. It is kept
// distinct from the engine-wide errs.Kind set because callers frequently
// need to switch on the specific sub-reason; engine facades wrap it as
// errs.BlobErrorKind via AsEngineError.
type BlobErrorCode string

const (
	ErrSizeClass          BlobErrorCode = "SizeClass"
	ErrLengthTooLarge     BlobErrorCode = "LengthTooLarge"
	ErrOverflow           BlobErrorCode = "Overflow"
	ErrGrowFailed         BlobErrorCode = "GrowFailed"
	ErrMissingAllocEntry  BlobErrorCode = "MissingAllocEntry"
	ErrInvalidState       BlobErrorCode = "InvalidState"
	ErrInvalidPointer     BlobErrorCode = "InvalidPointer"
	ErrLengthMismatch     BlobErrorCode = "LengthMismatch"
	ErrDuplicateFree      BlobErrorCode = "DuplicateFree"
)

type BlobError struct {
	Code BlobErrorCode
	Msg  string
}

func (e *BlobError) Error() string { return fmt.Sprintf("blob: %s: %s", e.Code, e.Msg) }

func blobErr(code BlobErrorCode, msg string) error { return &BlobError{Code: code, Msg: msg} }

// AsEngineError wraps a BlobError as the engine-wide typed error kind.
func AsEngineError(err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.BlobErrorKind, err.Error(), err)
}

// BlobStore is the slab-allocated arena described in spec section 4.1: an
// append-only region split into power-of-two size classes, addressed by
// generation-tagged BlobPtr, with a two-phase quarantine/free lifecycle for
// prune safety.
type BlobStore struct {
	region       *Region
	arenaEnd     uint64
	allocTable   map[allocKey]*allocEntry
	freeListByClass map[uint32][]uint64 // class -> offsets, smallest first
}

// NewBlobStore builds a BlobStore over the given region (normally
// registry.Region(MemBlobArena)).
func NewBlobStore(region *Region) *BlobStore {
	return &BlobStore{
		region:          region,
		allocTable:      make(map[allocKey]*allocEntry),
		freeListByClass: make(map[uint32][]uint64),
	}
}

// CurrentGen returns the generation currently recorded for (class, offset),
// or false if no allocation table entry exists there yet.
func (b *BlobStore) CurrentGen(class uint32, offset uint64) (uint32, bool) {
	e, ok := b.allocTable[allocKey{class, offset}]
	if !ok {
		return 0, false
	}
	return e.gen, true
}

func (b *BlobStore) popFree(class uint32) (uint64, bool) {
	list := b.freeListByClass[class]
	if len(list) == 0 {
		return 0, false
	}
	// smallest offset first
	minIdx := 0
	for i, off := range list {
		if off < list[minIdx] {
			minIdx = i
		}
	}
	off := list[minIdx]
	b.freeListByClass[class] = append(list[:minIdx], list[minIdx+1:]...)
	return off, true
}

// StoreBytes selects the smallest class >= len(data), reuses a free slot
// from that class's free list if one exists (bumping its generation),
// otherwise allocates a fresh slot at the arena end; writes data and grows
// the backing region to page-align.
func (b *BlobStore) StoreBytes(data []byte) (BlobPtr, error) {
	length := uint32(len(data))
	class, ok := SmallestClass(length)
	if !ok {
		return BlobPtr{}, blobErr(ErrLengthTooLarge, fmt.Sprintf("len %d exceeds max class %d", length, MaxClass()))
	}

	var offset uint64
	var gen uint32
	if off, found := b.popFree(class); found {
		offset = off
		entry, ok := b.allocTable[allocKey{class, offset}]
		if !ok {
			return BlobPtr{}, blobErr(ErrMissingAllocEntry, "free-list offset missing from alloc table")
		}
		entry.gen++
		entry.state = Used
		gen = entry.gen
	} else {
		offset = b.arenaEnd
		next := offset + uint64(class)
		if next < offset {
			return BlobPtr{}, blobErr(ErrOverflow, "arena end overflow")
		}
		b.arenaEnd = next
		b.allocTable[allocKey{class, offset}] = &allocEntry{gen: 1, state: Used}
		gen = 1
	}

	if err := b.region.WriteAt(offset, data); err != nil {
		return BlobPtr{}, blobErr(ErrGrowFailed, err.Error())
	}
	return BlobPtr{Offset: offset, Len: length, Class: class, Gen: gen}, nil
}

func (b *BlobStore) lookup(ptr BlobPtr) (*allocEntry, error) {
	entry, ok := b.allocTable[allocKey{ptr.Class, ptr.Offset}]
	if !ok {
		return nil, blobErr(ErrInvalidPointer, "no alloc entry for pointer")
	}
	if entry.gen != ptr.Gen {
		return nil, blobErr(ErrInvalidPointer, "generation mismatch")
	}
	if ptr.Offset+uint64(ptr.Class) > b.arenaEnd {
		return nil, blobErr(ErrInvalidPointer, "offset beyond arena end")
	}
	return entry, nil
}

// Read returns exactly ptr.Len bytes, failing InvalidPointer on a
// generation mismatch or an offset past the arena end.
func (b *BlobStore) Read(ptr BlobPtr) ([]byte, error) {
	if _, err := b.lookup(ptr); err != nil {
		return nil, err
	}
	out, err := b.region.ReadAt(ptr.Offset, ptr.Len)
	if err != nil {
		return nil, blobErr(ErrLengthMismatch, err.Error())
	}
	return out, nil
}

// Write overwrites the payload in place; len(data) must not exceed ptr.Class
// and the pointer must currently be Used.
func (b *BlobStore) Write(ptr BlobPtr, data []byte) error {
	entry, err := b.lookup(ptr)
	if err != nil {
		return err
	}
	if entry.state != Used {
		return blobErr(ErrInvalidState, "write to non-Used slot")
	}
	if uint32(len(data)) > ptr.Class {
		return blobErr(ErrLengthTooLarge, "write exceeds class size")
	}
	return b.region.WriteAt(ptr.Offset, data)
}

// MarkQuarantine transitions Used -> Quarantine; idempotent for an
// already-quarantined slot; rejects Free.
func (b *BlobStore) MarkQuarantine(ptr BlobPtr) error {
	entry, err := b.lookup(ptr)
	if err != nil {
		return err
	}
	switch entry.state {
	case Used:
		entry.state = Quarantine
		return nil
	case Quarantine:
		return nil
	default:
		return blobErr(ErrInvalidState, "cannot quarantine a Free slot")
	}
}

// MarkFree transitions Quarantine -> Free and enqueues the slot on its
// class's free list; rejects double-free from Used; idempotent for
// already-free.
func (b *BlobStore) MarkFree(ptr BlobPtr) error {
	entry, err := b.lookup(ptr)
	if err != nil {
		return err
	}
	switch entry.state {
	case Quarantine:
		entry.state = Free
		b.freeListByClass[ptr.Class] = append(b.freeListByClass[ptr.Class], ptr.Offset)
		return nil
	case Free:
		return nil
	default:
		return blobErr(ErrInvalidState, "MarkFree requires Quarantine")
	}
}

// ReclaimForPrune may be called from Used or Quarantine and transitions
// directly to Free; it is idempotent, used by prune-journal crash recovery
// where the prior run's phase is unknown.
func (b *BlobStore) ReclaimForPrune(ptr BlobPtr) error {
	entry, err := b.lookup(ptr)
	if err != nil {
		return err
	}
	switch entry.state {
	case Used, Quarantine:
		entry.state = Free
		b.freeListByClass[ptr.Class] = append(b.freeListByClass[ptr.Class], ptr.Offset)
		return nil
	case Free:
		return nil
	default:
		return blobErr(ErrInvalidState, "unknown state")
	}
}
