package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpooledRetainRelease(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(16, 64)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.RefCount())

	b.Retain()
	assert.EqualValues(t, 2, b.RefCount())

	assert.False(t, b.Release())
	assert.EqualValues(t, 1, b.RefCount())

	assert.True(t, b.Release())
	assert.EqualValues(t, 0, b.RefCount())
}

func TestReleaseTwiceIsFatal(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(8, 8)
	require.NoError(t, err)
	require.True(t, b.Release())
	assert.Panics(t, func() { b.Release() })
}

func TestAccessAfterReleaseFails(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(8, 8)
	require.NoError(t, err)
	require.True(t, b.Release())

	_, err = b.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrReferenceCountViolation)

	_, err = b.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrReferenceCountViolation)
}

func TestReadAtEqualIndicesYieldsZero(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(8, 8)
	require.NoError(t, err)
	n, err := b.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, b.ReaderIndex())
}

func TestWriteGrowsWithinMaxCapacity(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(4, 16)
	require.NoError(t, err)
	n, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, 11, b.WriterIndex())
	assert.LessOrEqual(t, b.Capacity(), 16)
}

func TestWriteBeyondMaxCapacityFails(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(4, 4)
	require.NoError(t, err)
	_, err = b.Write([]byte("12345"))
	assert.ErrorIs(t, err, ErrMaxCapacityExceeded)
}

func TestSliceSharesStorageAndRefcount(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(8, 8)
	require.NoError(t, err)
	_, _ = b.Write([]byte("abcdefgh"))

	s, err := b.Slice(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("cde"), s.Bytes())
	assert.EqualValues(t, 1, s.RefCount(), "slice shares the parent's count")

	s.Retain()
	assert.EqualValues(t, 2, b.RefCount())
}

func TestDuplicateHasIndependentIndices(t *testing.T) {
	b, err := UnpooledAllocator{}.Buffer(8, 8)
	require.NoError(t, err)
	_, _ = b.Write([]byte("abcdefgh"))

	d := b.Duplicate()
	_, _ = d.Read(make([]byte, 3))
	assert.Equal(t, 3, d.ReaderIndex())
	assert.Equal(t, 0, b.ReaderIndex(), "duplicate's reader index is independent")
}

func TestPooledAllocatorClassifiesRequests(t *testing.T) {
	p := NewPooledAllocator()

	tiny, err := p.Buffer(100, 100)
	require.NoError(t, err)
	assert.Equal(t, classTiny, classify(100))
	require.True(t, tiny.Release())

	small, err := p.Buffer(4000, 4000)
	require.NoError(t, err)
	assert.Equal(t, classSmall, classify(4000))
	require.True(t, small.Release())

	huge, err := p.Buffer(32*1024*1024, 32*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, classHuge, classify(32*1024*1024))
	_ = huge.Release()
}

// TestPooledAllocatorAllocatesAfterRelease releases a pooled buffer (which
// puts its arena back into the pool) and allocates again from the same
// class. sync.Pool does not guarantee that the same arena comes back, so
// only the second allocation's success is checked, not arena identity.
func TestPooledAllocatorAllocatesAfterRelease(t *testing.T) {
	p := NewPooledAllocator()

	b1, err := p.Buffer(100, 100)
	require.NoError(t, err)
	b1.Release()

	b2, err := p.Buffer(100, 100)
	require.NoError(t, err)
	defer b2.Release()
	assert.NotNil(t, b2)
}

func TestCompositeRetainsComponentsAndPresentsAsOne(t *testing.T) {
	a, _ := UnpooledAllocator{}.Buffer(4, 4)
	_, _ = a.Write([]byte("ab"))
	b, _ := UnpooledAllocator{}.Buffer(4, 4)
	_, _ = b.Write([]byte("cd"))

	comp := NewComposite(16, a, b)
	assert.Equal(t, 4, comp.ReadableBytes())
	assert.Equal(t, []byte("abcd"), comp.Bytes())

	// Each component got its own retain on top of the caller's own reference.
	assert.EqualValues(t, 2, a.RefCount())
	assert.EqualValues(t, 2, b.RefCount())

	comp.Release()
	assert.EqualValues(t, 1, a.RefCount())
	assert.EqualValues(t, 1, b.RefCount())
}

func TestCompositeReadAcrossComponentBoundary(t *testing.T) {
	a, _ := UnpooledAllocator{}.Buffer(4, 4)
	_, _ = a.Write([]byte("ab"))
	b, _ := UnpooledAllocator{}.Buffer(4, 4)
	_, _ = b.Write([]byte("cd"))
	comp := NewComposite(16, a, b)
	defer comp.Release()

	out := make([]byte, 4)
	n, err := comp.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(out))
}
