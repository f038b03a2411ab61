package pipeline

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/joeycumines/nettle/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageToMessageDecoderSplitsOneIntoMany(t *testing.T) {
	pl, _ := newTestPipeline()
	var got []any
	decode := func(msg any) ([]any, error) {
		parts := strings.Split(msg.(string), ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}
	require.NoError(t, pl.AddLast("dec", NewMessageToMessageDecoder(decode)))
	require.NoError(t, pl.AddLast("collect", HandlerFunc(func(ctx *HandlerContext, msg any) {
		got = append(got, msg)
	})))

	pl.FireChannelRead("a,b,c")
	assert.Equal(t, []any{"a", "b", "c"}, got)
}

func TestMessageToMessageDecoderErrorBecomesException(t *testing.T) {
	pl, _ := newTestPipeline()
	var caught error
	boom := errors.New("bad frame")
	require.NoError(t, pl.AddLast("dec", NewMessageToMessageDecoder(func(any) ([]any, error) { return nil, boom })))
	require.NoError(t, pl.AddLast("sink", &exceptionSink{out: &[]any{}, err: &caught}))

	pl.FireChannelRead("x")
	assert.ErrorIs(t, caught, boom)
}

func TestMessageToMessageEncoderRoundTrip(t *testing.T) {
	pl, ft := newTestPipeline()
	encode := func(msg any) ([]any, error) {
		n := msg.(int)
		return []any{[]byte(strconv.Itoa(n))}, nil
	}
	require.NoError(t, pl.AddLast("enc", NewMessageToMessageEncoder(encode)))

	loop, err := eventloop.New()
	require.NoError(t, err)
	p := loop.NewPromise()
	pl.Write(42, p)

	require.Equal(t, []any{[]byte("42")}, ft.writes)
	_, err = p.Result()
	assert.NoError(t, err)
}

func TestMessageToMessageEncoderEmptyOutputSucceedsImmediately(t *testing.T) {
	pl, ft := newTestPipeline()
	require.NoError(t, pl.AddLast("enc", NewMessageToMessageEncoder(func(any) ([]any, error) { return nil, nil })))

	loop, err := eventloop.New()
	require.NoError(t, err)
	p := loop.NewPromise()
	pl.Write("swallowed", p)

	assert.Empty(t, ft.writes)
	v, err := p.Result()
	require.NoError(t, err)
	assert.Nil(t, v)
}
