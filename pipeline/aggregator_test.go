package pipeline

import (
	"testing"

	"github.com/joeycumines/nettle/buf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type startMsg struct{ n int }

func (s startMsg) StartLen() int { return s.n }

type contentMsg struct {
	b    []byte
	last bool
}

func (c contentMsg) ContentBytes() []byte { return c.b }
func (c contentMsg) IsLast() bool         { return c.last }

func TestAggregatorExactLimitAccepts(t *testing.T) {
	pl, _ := newTestPipeline()
	var got []any
	require.NoError(t, pl.AddLast("agg", NewAggregator(10, buf.UnpooledAllocator{})))
	require.NoError(t, pl.AddLast("collect", HandlerFunc(func(ctx *HandlerContext, msg any) {
		got = append(got, msg)
	})))

	pl.FireChannelRead(startMsg{n: 2})
	pl.FireChannelRead(contentMsg{b: []byte("12345678"), last: true}) // 2 + 8 == 10, exactly the max

	require.Len(t, got, 1)
	agg := got[0].(*Aggregated)
	assert.Equal(t, "12345678", string(agg.Content.Bytes()))
}

func TestAggregatorOneByteOverRejects(t *testing.T) {
	pl, _ := newTestPipeline()
	var got []any
	var caught error
	require.NoError(t, pl.AddLast("agg", NewAggregator(10, buf.UnpooledAllocator{})))
	require.NoError(t, pl.AddLast("collect", &exceptionSink{out: &got, err: &caught}))

	pl.FireChannelRead(startMsg{n: 2})
	pl.FireChannelRead(contentMsg{b: []byte("123456789"), last: true}) // 2 + 9 == 11, one over

	assert.Empty(t, got)
	require.Error(t, caught)
	assert.ErrorIs(t, caught, ErrTooLongFrame)
}

func TestAggregatorPassesThroughNonSequenceMessages(t *testing.T) {
	pl, _ := newTestPipeline()
	var got []any
	require.NoError(t, pl.AddLast("agg", NewAggregator(10, buf.UnpooledAllocator{})))
	require.NoError(t, pl.AddLast("collect", HandlerFunc(func(ctx *HandlerContext, msg any) {
		got = append(got, msg)
	})))

	pl.FireChannelRead("plain string")
	require.Equal(t, []any{"plain string"}, got)
}

// exceptionSink records both forwarded reads and exceptions reaching it.
type exceptionSink struct {
	InboundAdapter
	out *[]any
	err *error
}

func (s *exceptionSink) Mask() EventMask { return MaskChannelRead | MaskExceptionCaught }
func (s *exceptionSink) ChannelRead(ctx *HandlerContext, msg any) {
	*s.out = append(*s.out, msg)
}
func (s *exceptionSink) ExceptionCaught(ctx *HandlerContext, err error) {
	*s.err = err
}

var _ InboundHandler = (*exceptionSink)(nil)
