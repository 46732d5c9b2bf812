// See the file LICENSE for licensing terms.

package stable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	reg := NewRegistry()
	bs := NewBlobStore(reg.Region(MemBlobArena))

	ptr, err := bs.StoreBytes([]byte("hello world"))
	require.NoError(t, err)

	got, err := bs.Read(ptr)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestBlobStoreGenerationBump(t *testing.T) {
	reg := NewRegistry()
	bs := NewBlobStore(reg.Region(MemBlobArena))

	first, err := bs.StoreBytes(make([]byte, 100))
	require.NoError(t, err)

	require.NoError(t, bs.MarkQuarantine(first))
	require.NoError(t, bs.MarkFree(first))

	second, err := bs.StoreBytes(make([]byte, 100))
	require.NoError(t, err)

	require.Equal(t, first.Offset, second.Offset)
	require.Equal(t, first.Class, second.Class)
	require.Greater(t, second.Gen, first.Gen)

	_, err = bs.Read(first)
	require.Error(t, err)
	var be *BlobError
	require.ErrorAs(t, err, &be)
	require.Equal(t, ErrInvalidPointer, be.Code)
}

func TestBlobStoreQuarantineNeverReused(t *testing.T) {
	reg := NewRegistry()
	bs := NewBlobStore(reg.Region(MemBlobArena))

	ptr, err := bs.StoreBytes(make([]byte, 10))
	require.NoError(t, err)
	require.NoError(t, bs.MarkQuarantine(ptr))

	// StoreBytes must never hand back an offset still in Quarantine: the
	// free list is only populated by MarkFree/ReclaimForPrune, so a second
	// allocation of the same class must land at a fresh offset.
	other, err := bs.StoreBytes(make([]byte, 10))
	require.NoError(t, err)
	require.NotEqual(t, ptr.Offset, other.Offset)
}

func TestBlobStoreDoubleFreeRejected(t *testing.T) {
	reg := NewRegistry()
	bs := NewBlobStore(reg.Region(MemBlobArena))

	ptr, err := bs.StoreBytes(make([]byte, 10))
	require.NoError(t, err)
	require.NoError(t, bs.MarkQuarantine(ptr))
	require.NoError(t, bs.MarkFree(ptr))
	require.NoError(t, bs.MarkFree(ptr)) // idempotent, already Free

	// mark_quarantine rejects Free.
	err = bs.MarkQuarantine(ptr)
	require.Error(t, err)
	var be *BlobError
	require.ErrorAs(t, err, &be)
	require.Equal(t, ErrInvalidState, be.Code)
}

func TestSmallestClass(t *testing.T) {
	c, ok := SmallestClass(1)
	require.True(t, ok)
	require.Equal(t, Class8K, c)

	_, ok = SmallestClass(Class4M + 1)
	require.False(t, ok)
}
