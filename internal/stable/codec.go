// See the file LICENSE for licensing terms.

package stable

import "sort"

// Bound describes a Storable type's on-wire size contract, mirroring
// ic_stable_structures' Storable::BOUND: either a fixed-size record or a
// variable one bounded by MaxSize. No encoder in this repository checks it.
type Bound struct {
	MaxSize     uint32
	IsFixedSize bool
}

// Storable is implemented by every on-wire record type in internal/kv.
type Storable interface {
	Encode() []byte
}

// Codec pairs an encoder/decoder for a key or value type used inside
// OrderedMap. Decode reports false (never panics) on malformed bytes, per
// the round-trip/no-panic testable property.
type Codec[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) (T, bool)
}

// OrderedMap is the Go-native analogue of StableBTreeMap: a map keyed by a
// comparable Go type K, iterable in ascending order of its encoded byte
// key. It backs the mempool's ordered indices (pending by sender/nonce,
// ready queue, ready by seq, pending fee index); other maps are plain Go
// maps.
type OrderedMap[K comparable, V any] struct {
	data    map[K]V
	keyEnc  func(K) []byte
}

// NewOrderedMap constructs an empty map; keyEnc must return the same bytes
// for equal keys and is used only to define iteration order.
func NewOrderedMap[K comparable, V any](keyEnc func(K) []byte) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{data: make(map[K]V), keyEnc: keyEnc}
}

func (m *OrderedMap[K, V]) Get(k K) (V, bool) {
	v, ok := m.data[k]
	return v, ok
}

func (m *OrderedMap[K, V]) Insert(k K, v V) { m.data[k] = v }

func (m *OrderedMap[K, V]) Remove(k K) {
	delete(m.data, k)
}

func (m *OrderedMap[K, V]) Len() int { return len(m.data) }

func (m *OrderedMap[K, V]) Contains(k K) bool {
	_, ok := m.data[k]
	return ok
}

// Keys returns every key in ascending byte-key order.
func (m *OrderedMap[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		bi, bj := m.keyEnc(keys[i]), m.keyEnc(keys[j])
		return lessBytes(bi, bj)
	})
	return keys
}

// Range calls fn for every entry in ascending key order, stopping early if
// fn returns false.
func (m *OrderedMap[K, V]) Range(fn func(K, V) bool) {
	for _, k := range m.Keys() {
		if !fn(k, m.data[k]) {
			return
		}
	}
}

// First returns the smallest key/value pair, if any.
func (m *OrderedMap[K, V]) First() (K, V, bool) {
	keys := m.Keys()
	if len(keys) == 0 {
		var zk K
		var zv V
		return zk, zv, false
	}
	return keys[0], m.data[keys[0]], true
}

func lessBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Cell is the Go-native analogue of StableCell: a single versioned value.
type Cell[T any] struct {
	value T
}

func NewCell[T any](initial T) *Cell[T] { return &Cell[T]{value: initial} }

func (c *Cell[T]) Get() T     { return c.value }
func (c *Cell[T]) Set(v T)    { c.value = v }
