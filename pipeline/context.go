package pipeline

import (
	"fmt"

	"github.com/joeycumines/nettle/eventloop"
)

// Executor runs tasks belonging to one HandlerContext. A Loop satisfies
// this directly; a handler may be given a different executor than its
// channel's loop for offloading heavy work, per the framework's per-handler
// execution-affinity rule.
type Executor interface {
	Submit(eventloop.Task) error
	InEventLoop() bool
}

// HandlerContext is one node of the pipeline's doubly-linked chain: a
// name, the handler it wraps, links to its neighbours, the executor its
// methods run on, and the event-interest mask used to skip over it.
type HandlerContext struct {
	name     string
	handler  Handler
	pipeline *Pipeline
	prev     *HandlerContext
	next     *HandlerContext
	executor Executor
	mask     EventMask
}

// Name returns the context's name, unique within its pipeline.
func (c *HandlerContext) Name() string { return c.name }

// Handler returns the wrapped Handler.
func (c *HandlerContext) Handler() Handler { return c.handler }

// Pipeline returns the owning Pipeline.
func (c *HandlerContext) Pipeline() *Pipeline { return c.pipeline }

func (c *HandlerContext) run(fn func()) {
	if c.executor.InEventLoop() {
		fn()
		return
	}
	_ = c.executor.Submit(fn)
}

// --- inbound propagation: walk forward from this context ---

func (c *HandlerContext) nextInbound(bit EventMask) *HandlerContext {
	for n := c.next; n != nil; n = n.next {
		if n.mask.Has(bit) || n == c.pipeline.tail {
			return n
		}
	}
	return c.pipeline.tail
}

func (c *HandlerContext) FireChannelRegistered() {
	n := c.nextInbound(MaskChannelRegistered)
	n.run(func() { n.handler.(InboundHandler).ChannelRegistered(n) })
}

func (c *HandlerContext) FireChannelUnregistered() {
	n := c.nextInbound(MaskChannelUnregistered)
	n.run(func() { n.handler.(InboundHandler).ChannelUnregistered(n) })
}

func (c *HandlerContext) FireChannelActive() {
	n := c.nextInbound(MaskChannelActive)
	n.run(func() { n.handler.(InboundHandler).ChannelActive(n) })
}

func (c *HandlerContext) FireChannelInactive() {
	n := c.nextInbound(MaskChannelInactive)
	n.run(func() { n.handler.(InboundHandler).ChannelInactive(n) })
}

func (c *HandlerContext) FireChannelRead(msg any) {
	n := c.nextInbound(MaskChannelRead)
	n.run(func() { n.handler.(InboundHandler).ChannelRead(n, msg) })
}

func (c *HandlerContext) FireChannelReadComplete() {
	n := c.nextInbound(MaskChannelReadComplete)
	n.run(func() { n.handler.(InboundHandler).ChannelReadComplete(n) })
}

func (c *HandlerContext) FireChannelWritabilityChanged() {
	n := c.nextInbound(MaskChannelWritabilityChanged)
	n.run(func() { n.handler.(InboundHandler).ChannelWritabilityChanged(n) })
}

// FireExceptionCaught propagates inbound starting at this context's
// successor, per the rule that an error raised by a handler surfaces to
// its own next context, not itself.
func (c *HandlerContext) FireExceptionCaught(err error) {
	n := c.nextInbound(MaskExceptionCaught)
	n.run(func() { n.handler.(InboundHandler).ExceptionCaught(n, err) })
}

func (c *HandlerContext) FireUserEventTriggered(evt any) {
	n := c.nextInbound(MaskUserEventTriggered)
	n.run(func() { n.handler.(InboundHandler).UserEventTriggered(n, evt) })
}

// --- outbound propagation: walk backward from this context ---

func (c *HandlerContext) prevOutbound(bit EventMask) *HandlerContext {
	for p := c.prev; p != nil; p = p.prev {
		if p.mask.Has(bit) || p == c.pipeline.head {
			return p
		}
	}
	return c.pipeline.head
}

func (c *HandlerContext) Bind(addr any, promise eventloop.Promise) {
	p := c.prevOutbound(MaskBind)
	p.run(func() { p.handler.(OutboundHandler).Bind(p, addr, promise) })
}

func (c *HandlerContext) Connect(remote, local any, promise eventloop.Promise) {
	p := c.prevOutbound(MaskConnect)
	p.run(func() { p.handler.(OutboundHandler).Connect(p, remote, local, promise) })
}

func (c *HandlerContext) Disconnect(promise eventloop.Promise) {
	p := c.prevOutbound(MaskDisconnect)
	p.run(func() { p.handler.(OutboundHandler).Disconnect(p, promise) })
}

func (c *HandlerContext) Close(promise eventloop.Promise) {
	p := c.prevOutbound(MaskClose)
	p.run(func() { p.handler.(OutboundHandler).Close(p, promise) })
}

func (c *HandlerContext) Read() {
	p := c.prevOutbound(MaskRead)
	p.run(func() { p.handler.(OutboundHandler).Read(p) })
}

func (c *HandlerContext) Write(msg any, promise eventloop.Promise) {
	p := c.prevOutbound(MaskWrite)
	p.run(func() { p.handler.(OutboundHandler).Write(p, msg, promise) })
}

func (c *HandlerContext) Flush() {
	p := c.prevOutbound(MaskFlush)
	p.run(func() { p.handler.(OutboundHandler).Flush(p) })
}

func (c *HandlerContext) String() string {
	return fmt.Sprintf("HandlerContext(%s)", c.name)
}
