package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedAllocatorExhaustion(t *testing.T) {
	a := NewBoundedAllocator(UnpooledAllocator{}, 16)

	b1, err := a.Buffer(10, 10)
	require.NoError(t, err)

	_, err = a.Buffer(10, 10)
	assert.ErrorIs(t, err, ErrAllocatorExhausted)

	// Releasing the first buffer returns its charge to the budget, so a
	// subsequent request of the same size succeeds; the allocator itself
	// never retries on the caller's behalf.
	require.True(t, b1.Release())

	b2, err := a.Buffer(10, 10)
	require.NoError(t, err)
	assert.True(t, b2.Release())
}

func TestBoundedAllocatorRejectsOversizedRequestOutright(t *testing.T) {
	a := NewBoundedAllocator(UnpooledAllocator{}, 8)
	_, err := a.Buffer(16, 16)
	assert.ErrorIs(t, err, ErrAllocatorExhausted)
}
