package pipeline

import (
	"io"
	"testing"

	"github.com/joeycumines/nettle/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceChunkedInput struct {
	chunks [][]byte
	i      int
	closed bool
}

func (s *sliceChunkedInput) HasNext() bool { return s.i < len(s.chunks) }
func (s *sliceChunkedInput) Next() ([]byte, error) {
	if s.i >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}
func (s *sliceChunkedInput) Close() error { s.closed = true; return nil }

func TestChunkedWriteEmitsOnePerChunk(t *testing.T) {
	pl, ft := newTestPipeline()
	writable := true
	require.NoError(t, pl.AddLast("chunked", NewChunkedWriteHandler(func() bool { return writable })))

	loop, err := eventloop.New()
	require.NoError(t, err)
	p := loop.NewPromise()
	input := &sliceChunkedInput{chunks: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	pl.Write(input, p)

	require.Equal(t, []any{[]byte("a"), []byte("b"), []byte("c")}, ft.writes)
	assert.Equal(t, 3, ft.flushes)
	assert.True(t, input.closed)
	v, err := p.Result()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestChunkedWriteStopsWhenNotWritable(t *testing.T) {
	pl, ft := newTestPipeline()
	writable := false
	require.NoError(t, pl.AddLast("chunked", NewChunkedWriteHandler(func() bool { return writable })))

	loop, err := eventloop.New()
	require.NoError(t, err)
	p := loop.NewPromise()
	input := &sliceChunkedInput{chunks: [][]byte{[]byte("a"), []byte("b")}}
	pl.Write(input, p)

	assert.Empty(t, ft.writes)
	assert.Equal(t, eventloop.Pending, p.State())

	writable = true
	pl.FireChannelWritabilityChanged()
	require.Equal(t, []any{[]byte("a"), []byte("b")}, ft.writes)
	_, err = p.Result()
	assert.NoError(t, err)
}

func TestChunkedWriteRejectsConcurrentSource(t *testing.T) {
	pl, _ := newTestPipeline()
	require.NoError(t, pl.AddLast("chunked", NewChunkedWriteHandler(func() bool { return false })))

	loop, err := eventloop.New()
	require.NoError(t, err)
	p1 := loop.NewPromise()
	pl.Write(&sliceChunkedInput{chunks: [][]byte{[]byte("a")}}, p1)

	p2 := loop.NewPromise()
	pl.Write(&sliceChunkedInput{chunks: [][]byte{[]byte("b")}}, p2)

	_, err = p2.Result()
	assert.ErrorIs(t, err, ErrChunkedWriteInProgress)
}

func TestChunkedWriteAbandonedOnInactive(t *testing.T) {
	pl, _ := newTestPipeline()
	require.NoError(t, pl.AddLast("chunked", NewChunkedWriteHandler(func() bool { return false })))

	loop, err := eventloop.New()
	require.NoError(t, err)
	p := loop.NewPromise()
	input := &sliceChunkedInput{chunks: [][]byte{[]byte("a")}}
	pl.Write(input, p)

	pl.FireChannelInactive()
	assert.True(t, input.closed)
	_, err = p.Result()
	assert.ErrorIs(t, err, ErrChunkedSourceAbandoned)
}
