// See the file LICENSE for licensing terms.

package kv

import "encoding/binary"

// QueueMeta is a generic bounded-ring head/tail pair, used by the
// dropped-tx ring and any other fixed-capacity ring buffer in the engine.
type QueueMeta struct {
	Head uint64
	Tail uint64
}

const QueueMetaEncodedLen = 16

func (q QueueMeta) Encode() []byte {
	buf := make([]byte, QueueMetaEncodedLen)
	binary.BigEndian.PutUint64(buf[0:8], q.Head)
	binary.BigEndian.PutUint64(buf[8:16], q.Tail)
	return buf
}

func DecodeQueueMeta(b []byte) (QueueMeta, bool) {
	if len(b) != QueueMetaEncodedLen {
		return QueueMeta{}, false
	}
	return QueueMeta{
		Head: binary.BigEndian.Uint64(b[0:8]),
		Tail: binary.BigEndian.Uint64(b[8:16]),
	}, true
}

// Push advances Tail and returns the slot index to write into.
func (q *QueueMeta) Push() uint64 {
	slot := q.Tail
	q.Tail++
	return slot
}

// Pop advances Head, returning the slot index that was consumed, or false
// if the queue is empty.
func (q *QueueMeta) Pop() (uint64, bool) {
	if q.Head >= q.Tail {
		return 0, false
	}
	slot := q.Head
	q.Head++
	return slot, true
}

// Len reports the number of live entries.
func (q QueueMeta) Len() uint64 { return q.Tail - q.Head }

// DroppedRingCapacity bounds tx_locs with kind=Dropped, per testable
// property 13.
const DroppedRingCapacity = 1000
