package pipeline

import (
	"errors"
	"testing"

	"github.com/joeycumines/nettle/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncExecutor runs every submitted task immediately on the calling
// goroutine and reports itself as always being "the event loop", letting
// pipeline tests exercise chain mutation and event propagation without a
// real Loop goroutine.
type syncExecutor struct{}

func (syncExecutor) Submit(t eventloop.Task) error { t(); return nil }
func (syncExecutor) InEventLoop() bool             { return true }

type fakeTransport struct {
	reads   int
	writes  []any
	flushes int
	closed  bool
}

func (f *fakeTransport) DoBind(addr any, promise eventloop.Promise) { promise.Succeed(addr) }
func (f *fakeTransport) DoConnect(remote, local any, promise eventloop.Promise) {
	promise.Succeed(remote)
}
func (f *fakeTransport) DoDisconnect(promise eventloop.Promise) { promise.Succeed(nil) }
func (f *fakeTransport) DoClose(promise eventloop.Promise)      { f.closed = true; promise.Succeed(nil) }
func (f *fakeTransport) DoRead()                                { f.reads++ }
func (f *fakeTransport) DoWrite(msg any, promise eventloop.Promise) {
	f.writes = append(f.writes, msg)
	if promise != nil {
		promise.Succeed(nil)
	}
}
func (f *fakeTransport) DoFlush() { f.flushes++ }
func (f *fakeTransport) Logger() eventloop.Logger { return eventloop.NewNoopLogger() }

func newTestPipeline() (*Pipeline, *fakeTransport) {
	ft := &fakeTransport{}
	return New(ft, syncExecutor{}), ft
}

// recordingHandler records every inbound event it sees by name, and
// forwards every event and outbound operation onward unchanged.
type recordingHandler struct {
	InboundAdapter
	OutboundAdapter
	name   string
	events *[]string
}

func (h *recordingHandler) Mask() EventMask { return MaskAllInbound | MaskAllOutbound }

func (h *recordingHandler) ChannelActive(ctx *HandlerContext) {
	*h.events = append(*h.events, h.name+":active")
	ctx.FireChannelActive()
}

func (h *recordingHandler) ChannelRead(ctx *HandlerContext, msg any) {
	*h.events = append(*h.events, h.name+":read")
	ctx.FireChannelRead(msg)
}

var (
	_ InboundHandler  = (*recordingHandler)(nil)
	_ OutboundHandler = (*recordingHandler)(nil)
)

func TestInboundEventsPropagateInOrder(t *testing.T) {
	pl, _ := newTestPipeline()
	var events []string
	require.NoError(t, pl.AddLast("a", &recordingHandler{name: "a", events: &events}))
	require.NoError(t, pl.AddLast("b", &recordingHandler{name: "b", events: &events}))

	pl.FireChannelActive()
	pl.FireChannelRead("hello")

	assert.Equal(t, []string{"a:active", "b:active", "a:read", "b:read"}, events)
}

func TestMaskSkipsUninterestedHandlers(t *testing.T) {
	pl, _ := newTestPipeline()
	var events []string
	// HandlerFunc only declares MaskChannelRead, so ChannelActive must skip
	// straight over it without invoking any of its methods.
	require.NoError(t, pl.AddLast("ro", HandlerFunc(func(ctx *HandlerContext, msg any) {
		events = append(events, "ro:read")
		ctx.FireChannelRead(msg)
	})))

	pl.FireChannelActive() // no handler wants this; should reach tail silently
	pl.FireChannelRead("x")

	assert.Equal(t, []string{"ro:read"}, events)
}

func TestOutboundWriteReachesTransport(t *testing.T) {
	pl, ft := newTestPipeline()
	loop, err := eventloop.New()
	require.NoError(t, err)
	p := loop.NewPromise()
	pl.Write("payload", p)
	require.Equal(t, []any{"payload"}, ft.writes)
	v, err := p.Result()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRemoveUnlinksHandler(t *testing.T) {
	pl, _ := newTestPipeline()
	var events []string
	require.NoError(t, pl.AddLast("a", &recordingHandler{name: "a", events: &events}))
	require.NoError(t, pl.Remove("a"))

	pl.FireChannelActive()
	assert.Empty(t, events)
	assert.Nil(t, pl.Get("a"))
}

func TestAddDuplicateNameFails(t *testing.T) {
	pl, _ := newTestPipeline()
	require.NoError(t, pl.AddLast("a", &recordingHandler{name: "a", events: &[]string{}}))
	err := pl.AddLast("a", &recordingHandler{name: "a2", events: &[]string{}})
	assert.Error(t, err)
}

func TestTailAbsorbsUnhandledExceptionWithoutPanic(t *testing.T) {
	pl, _ := newTestPipeline()
	// No handler installed: an exception fired at the head must reach the
	// tail without panicking, since tailHandler implements ExceptionCaught.
	assert.NotPanics(t, func() { pl.FireExceptionCaught(errors.New("boom")) })
}
