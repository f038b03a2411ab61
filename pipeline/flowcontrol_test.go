package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowControlBuffersUntilRead(t *testing.T) {
	pl, ft := newTestPipeline()
	var got []any
	require.NoError(t, pl.AddLast("fc", NewFlowControlHandler(false)))
	require.NoError(t, pl.AddLast("collect", HandlerFunc(func(ctx *HandlerContext, msg any) {
		got = append(got, msg)
	})))

	pl.FireChannelRead("a")
	pl.FireChannelRead("b")
	// auto-read is off: neither message should have reached "collect" yet,
	// and no read() request should have reached the transport either.
	assert.Empty(t, got)
	assert.Equal(t, 0, ft.reads)

	pl.Read() // first explicit read drains the oldest queued message
	assert.Equal(t, []any{"a"}, got)
	assert.Equal(t, 0, ft.reads) // satisfied from the queue, transport never asked

	pl.Read()
	assert.Equal(t, []any{"a", "b"}, got)

	pl.Read() // queue empty: this one must actually reach the transport
	assert.Equal(t, 1, ft.reads)
}

func TestFlowControlPassThroughWhenAutoRead(t *testing.T) {
	pl, _ := newTestPipeline()
	var got []any
	require.NoError(t, pl.AddLast("fc", NewFlowControlHandler(true)))
	require.NoError(t, pl.AddLast("collect", HandlerFunc(func(ctx *HandlerContext, msg any) {
		got = append(got, msg)
	})))

	pl.FireChannelRead("a")
	assert.Equal(t, []any{"a"}, got)
}

type releaseSpy struct{ released bool }

func (r *releaseSpy) Release() bool { r.released = true; return true }

func TestFlowControlReleasesQueuedOnInactive(t *testing.T) {
	pl, _ := newTestPipeline()
	require.NoError(t, pl.AddLast("fc", NewFlowControlHandler(false)))

	spy := &releaseSpy{}
	pl.FireChannelRead(spy)
	pl.FireChannelInactive()
	assert.True(t, spy.released)
}
