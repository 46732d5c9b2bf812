// See the file LICENSE for licensing terms.

package stateroot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrieRoundTrip(t *testing.T) {
	db := NewNodeDB()
	tr := NewTrie(db)

	tr.Put([]byte("alpha"), []byte("1"))
	tr.Put([]byte("alb"), []byte("2"))
	tr.Put([]byte("beta"), []byte("3"))

	v, ok := tr.Get([]byte("alpha"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	v, ok = tr.Get([]byte("alb"))
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)

	_, ok = tr.Get([]byte("missing"))
	require.False(t, ok)

	root1 := tr.Root()
	require.NotEqual(t, [32]byte{}, root1)

	tr.Delete([]byte("alb"))
	_, ok = tr.Get([]byte("alb"))
	require.False(t, ok)
	v, ok = tr.Get([]byte("alpha"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestTrieDeterministicRoot(t *testing.T) {
	db1, db2 := NewNodeDB(), NewNodeDB()
	t1, t2 := NewTrie(db1), NewTrie(db2)

	t1.Put([]byte("a"), []byte("x"))
	t1.Put([]byte("ab"), []byte("y"))
	t1.Put([]byte("abc"), []byte("z"))

	t2.Put([]byte("abc"), []byte("z"))
	t2.Put([]byte("a"), []byte("x"))
	t2.Put([]byte("ab"), []byte("y"))

	require.Equal(t, t1.Root(), t2.Root())
}

func TestTrieEmptyRootIsZero(t *testing.T) {
	db := NewNodeDB()
	tr := NewTrie(db)
	require.Equal(t, [32]byte{}, tr.Root())
}
