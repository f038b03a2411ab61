package pipeline

import "github.com/joeycumines/nettle/eventloop"

// Handler is implemented by every pipeline participant. Mask declares,
// once at construction, which events the handler actually wants to see;
// propagation checks it at each context it walks past and steps over a
// handler whose bit is unset without calling it.
type Handler interface {
	Mask() EventMask
}

// InboundHandler is implemented by handlers that want to see one or more
// inbound events. A handler need only implement the methods whose mask
// bit it sets; the pipeline never calls a method whose bit is unset.
type InboundHandler interface {
	Handler
	ChannelRegistered(ctx *HandlerContext)
	ChannelUnregistered(ctx *HandlerContext)
	ChannelActive(ctx *HandlerContext)
	ChannelInactive(ctx *HandlerContext)
	ChannelRead(ctx *HandlerContext, msg any)
	ChannelReadComplete(ctx *HandlerContext)
	ChannelWritabilityChanged(ctx *HandlerContext)
	ExceptionCaught(ctx *HandlerContext, err error)
	UserEventTriggered(ctx *HandlerContext, evt any)
}

// OutboundHandler is implemented by handlers that want to intercept one or
// more outbound operations on their way back to the transport.
type OutboundHandler interface {
	Handler
	Bind(ctx *HandlerContext, addr any, promise eventloop.Promise)
	Connect(ctx *HandlerContext, remote, local any, promise eventloop.Promise)
	Disconnect(ctx *HandlerContext, promise eventloop.Promise)
	Close(ctx *HandlerContext, promise eventloop.Promise)
	Read(ctx *HandlerContext)
	Write(ctx *HandlerContext, msg any, promise eventloop.Promise)
	Flush(ctx *HandlerContext)
}

// InboundAdapter is embedded by handlers that only implement a subset of
// InboundHandler's methods; every method forwards to the next context,
// matching the framework's "forward by default" rule.
type InboundAdapter struct{}

func (InboundAdapter) Mask() EventMask { return 0 }
func (InboundAdapter) ChannelRegistered(ctx *HandlerContext)   { ctx.FireChannelRegistered() }
func (InboundAdapter) ChannelUnregistered(ctx *HandlerContext) { ctx.FireChannelUnregistered() }
func (InboundAdapter) ChannelActive(ctx *HandlerContext)       { ctx.FireChannelActive() }
func (InboundAdapter) ChannelInactive(ctx *HandlerContext)     { ctx.FireChannelInactive() }
func (InboundAdapter) ChannelRead(ctx *HandlerContext, msg any) { ctx.FireChannelRead(msg) }
func (InboundAdapter) ChannelReadComplete(ctx *HandlerContext) { ctx.FireChannelReadComplete() }
func (InboundAdapter) ChannelWritabilityChanged(ctx *HandlerContext) {
	ctx.FireChannelWritabilityChanged()
}
func (InboundAdapter) ExceptionCaught(ctx *HandlerContext, err error) { ctx.FireExceptionCaught(err) }
func (InboundAdapter) UserEventTriggered(ctx *HandlerContext, evt any) {
	ctx.FireUserEventTriggered(evt)
}

// OutboundAdapter is embedded by handlers that only implement a subset of
// OutboundHandler's methods; every method forwards toward the head.
type OutboundAdapter struct{}

func (OutboundAdapter) Mask() EventMask { return 0 }
func (OutboundAdapter) Bind(ctx *HandlerContext, addr any, promise eventloop.Promise) {
	ctx.Bind(addr, promise)
}
func (OutboundAdapter) Connect(ctx *HandlerContext, remote, local any, promise eventloop.Promise) {
	ctx.Connect(remote, local, promise)
}
func (OutboundAdapter) Disconnect(ctx *HandlerContext, promise eventloop.Promise) {
	ctx.Disconnect(promise)
}
func (OutboundAdapter) Close(ctx *HandlerContext, promise eventloop.Promise) { ctx.Close(promise) }
func (OutboundAdapter) Read(ctx *HandlerContext)                            { ctx.Read() }
func (OutboundAdapter) Write(ctx *HandlerContext, msg any, promise eventloop.Promise) {
	ctx.Write(msg, promise)
}
func (OutboundAdapter) Flush(ctx *HandlerContext) { ctx.Flush() }

// HandlerFunc adapts a plain function into a minimal inbound-only Handler
// reacting to ChannelRead alone — a convenience for the common case of a
// handler that only cares about inbound messages, grounded in the same
// spirit as net/http's HandlerFunc.
type HandlerFunc func(ctx *HandlerContext, msg any)

func (f HandlerFunc) Mask() EventMask { return MaskChannelRead }

func (f HandlerFunc) ChannelRegistered(ctx *HandlerContext)   { ctx.FireChannelRegistered() }
func (f HandlerFunc) ChannelUnregistered(ctx *HandlerContext) { ctx.FireChannelUnregistered() }
func (f HandlerFunc) ChannelActive(ctx *HandlerContext)       { ctx.FireChannelActive() }
func (f HandlerFunc) ChannelInactive(ctx *HandlerContext)     { ctx.FireChannelInactive() }
func (f HandlerFunc) ChannelRead(ctx *HandlerContext, msg any) { f(ctx, msg) }
func (f HandlerFunc) ChannelReadComplete(ctx *HandlerContext) { ctx.FireChannelReadComplete() }
func (f HandlerFunc) ChannelWritabilityChanged(ctx *HandlerContext) {
	ctx.FireChannelWritabilityChanged()
}
func (f HandlerFunc) ExceptionCaught(ctx *HandlerContext, err error) { ctx.FireExceptionCaught(err) }
func (f HandlerFunc) UserEventTriggered(ctx *HandlerContext, evt any) {
	ctx.FireUserEventTriggered(evt)
}

var _ InboundHandler = HandlerFunc(nil)
