// See the file LICENSE for licensing terms.

package stable

import "encoding/binary"

// BlobState is the lifecycle state of an allocation table slot.
type BlobState uint8

const (
	Used       BlobState = 1
	Quarantine BlobState = 2
	Free       BlobState = 3
)

func (s BlobState) String() string {
	switch s {
	case Used:
		return "Used"
	case Quarantine:
		return "Quarantine"
	case Free:
		return "Free"
	default:
		return "Unknown"
	}
}

// BlobPtr addresses a payload inside the arena. It is a weak address: only
// dereferenceable while Gen matches the allocation table's current
// generation for (Class, Offset).
type BlobPtr struct {
	Offset uint64
	Len    uint32
	Class  uint32
	Gen    uint32
}

// allocKey identifies a slot in the allocation table, independent of
// generation, mirroring AllocKey{class, offset} in the original store.
type allocKey struct {
	class  uint32
	offset uint64
}

// allocEntry is the per-slot bookkeeping record.
type allocEntry struct {
	gen   uint32
	state BlobState
}

// EncodeBlobPtr/DecodeBlobPtr give BlobPtr a fixed 20-byte Storable layout
// (offset:8 + len:4 + class:4 + gen:4), big-endian, for use as a map value
// wherever a pointer itself must be persisted (e.g. prune journal entries).
const BlobPtrEncodedLen = 20

func EncodeBlobPtr(p BlobPtr) []byte {
	buf := make([]byte, BlobPtrEncodedLen)
	binary.BigEndian.PutUint64(buf[0:8], p.Offset)
	binary.BigEndian.PutUint32(buf[8:12], p.Len)
	binary.BigEndian.PutUint32(buf[12:16], p.Class)
	binary.BigEndian.PutUint32(buf[16:20], p.Gen)
	return buf
}

func DecodeBlobPtr(b []byte) (BlobPtr, bool) {
	if len(b) != BlobPtrEncodedLen {
		return BlobPtr{}, false
	}
	return BlobPtr{
		Offset: binary.BigEndian.Uint64(b[0:8]),
		Len:    binary.BigEndian.Uint32(b[8:12]),
		Class:  binary.BigEndian.Uint32(b[12:16]),
		Gen:    binary.BigEndian.Uint32(b[16:20]),
	}, true
}
