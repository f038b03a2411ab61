package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBufferWaterMarkHysteresis(t *testing.T) {
	// Mirrors spec.md's 64KB high / 16KB low back-pressure scenario, scaled
	// down so the test doesn't allocate real buffers of that size.
	wb := NewWriteBuffer(1000, 2000, ByteSizeEstimator{})

	for i := 0; i < 3; i++ {
		wb.Write(make([]byte, 1000), noopPromise{})
	}
	assert.False(t, wb.IsWritable(), "3000 pending bytes must cross the 2000 high water-mark")
	wb.Flush()

	wb.RemoveFront()
	assert.False(t, wb.IsWritable(), "2000 pending still sits above the 1000 low water-mark: hysteresis holds")

	wb.RemoveFront()
	assert.True(t, wb.IsWritable(), "1000 pending reaches the low water-mark: writability restores")
}

func TestWriteBufferFrontMessageDrainSequence(t *testing.T) {
	wb := NewWriteBuffer(0, 1<<30, ByteSizeEstimator{})
	p1, p2 := noopPromise{}, noopPromise{}
	wb.Write([]byte("a"), p1)
	wb.Write([]byte("b"), p2)

	_, _, ok := wb.FrontMessage()
	assert.False(t, ok, "unflushed entries aren't visible to the drain path")

	wb.Flush()
	msg, written, ok := wb.FrontMessage()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), msg)
	assert.Equal(t, 0, written)

	wb.AdvanceFront(1)
	_, written, _ = wb.FrontMessage()
	assert.Equal(t, 1, written)

	wb.RemoveFront()
	msg, _, ok = wb.FrontMessage()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), msg)

	wb.RemoveFront()
	_, _, ok = wb.FrontMessage()
	assert.False(t, ok)
}

func TestWriteBufferFailAllResetsState(t *testing.T) {
	wb := NewWriteBuffer(10, 20, ByteSizeEstimator{})
	wb.Write(make([]byte, 30), noopPromise{})
	wb.Flush()
	assert.False(t, wb.IsWritable())

	wb.FailAll(ErrTransportClosed)
	assert.True(t, wb.IsEmpty())
	assert.True(t, wb.IsWritable())
	assert.Equal(t, 0, wb.Pending())
}
