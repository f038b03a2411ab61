package pipeline

import (
	"fmt"
	"sync"

	"github.com/joeycumines/nettle/eventloop"
)

// Transport is the narrow interface a channel implements so the pipeline's
// head context can terminate outbound operations in actual I/O, and so the
// channel can feed inbound events into the pipeline's head without the
// pipeline package importing channel (avoiding the cycle channel ->
// pipeline -> channel).
type Transport interface {
	DoBind(addr any, promise eventloop.Promise)
	DoConnect(remote, local any, promise eventloop.Promise)
	DoDisconnect(promise eventloop.Promise)
	DoClose(promise eventloop.Promise)
	DoRead()
	DoWrite(msg any, promise eventloop.Promise)
	DoFlush()
	// Logger returns the ambient logger the owning channel's loop is
	// configured with (NewNoopLogger before registration), so the tail
	// handler can log unhandled exceptions through the same pipeline
	// rather than the standard library's log package.
	Logger() eventloop.Logger
}

// Pipeline is the per-channel doubly-linked chain of handler contexts,
// bracketed by immutable head and tail sentinels. Head terminates outbound
// operations in transport I/O and originates inbound events; tail
// swallows unhandled inbound events and logs unhandled exceptions.
type Pipeline struct {
	mu       sync.Mutex
	executor Executor
	head     *HandlerContext
	tail     *HandlerContext
	byName   map[string]*HandlerContext
}

// New constructs a Pipeline wired to transport, with handler methods
// defaulting to executor (normally the channel's owning Loop) unless a
// context overrides it via AddFirstWithExecutor et al.
func New(transport Transport, executor Executor) *Pipeline {
	p := &Pipeline{executor: executor, byName: make(map[string]*HandlerContext)}
	p.head = &HandlerContext{name: "head", pipeline: p, executor: executor, mask: MaskAllOutbound, handler: &headHandler{t: transport}}
	p.tail = &HandlerContext{name: "tail", pipeline: p, executor: executor, mask: MaskAllInbound, handler: &tailHandler{t: transport}}
	p.head.next = p.tail
	p.tail.prev = p.head
	return p
}

// Head and Tail expose the sentinel contexts, mainly so a channel can
// originate inbound events (Pipeline.FireChannelRegistered etc. below do
// that already; these are for advanced use such as custom traversal).
func (p *Pipeline) Head() *HandlerContext { return p.head }
func (p *Pipeline) Tail() *HandlerContext { return p.tail }

// mutate runs fn holding the pipeline's structural lock, trampolined onto
// the default executor if the caller isn't already on it — chain
// mutation is only ever observed from the owning loop.
func (p *Pipeline) mutate(fn func() error) error {
	if p.executor.InEventLoop() {
		p.mu.Lock()
		defer p.mu.Unlock()
		return fn()
	}
	errCh := make(chan error, 1)
	err := p.executor.Submit(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		errCh <- fn()
	})
	if err != nil {
		return err
	}
	return <-errCh
}

func (p *Pipeline) insert(name string, h Handler, executor Executor, link func(ctx *HandlerContext)) error {
	if executor == nil {
		executor = p.executor
	}
	return p.mutate(func() error {
		if _, exists := p.byName[name]; exists {
			return fmt.Errorf("pipeline: handler name %q already in use", name)
		}
		ctx := &HandlerContext{name: name, handler: h, pipeline: p, executor: executor, mask: h.Mask()}
		link(ctx)
		p.byName[name] = ctx
		return nil
	})
}

// AddFirst inserts h immediately after head.
func (p *Pipeline) AddFirst(name string, h Handler) error { return p.AddFirstWithExecutor(name, h, nil) }

func (p *Pipeline) AddFirstWithExecutor(name string, h Handler, executor Executor) error {
	return p.insert(name, h, executor, func(ctx *HandlerContext) {
		after := p.head
		before := after.next
		ctx.prev, ctx.next = after, before
		after.next, before.prev = ctx, ctx
	})
}

// AddLast inserts h immediately before tail.
func (p *Pipeline) AddLast(name string, h Handler) error { return p.AddLastWithExecutor(name, h, nil) }

func (p *Pipeline) AddLastWithExecutor(name string, h Handler, executor Executor) error {
	return p.insert(name, h, executor, func(ctx *HandlerContext) {
		before := p.tail
		after := before.prev
		ctx.prev, ctx.next = after, before
		after.next, before.prev = ctx, ctx
	})
}

// AddBefore inserts h immediately before the context named target.
func (p *Pipeline) AddBefore(target, name string, h Handler) error {
	return p.insert(name, h, nil, func(ctx *HandlerContext) {
		before := p.byName[target]
		after := before.prev
		ctx.prev, ctx.next = after, before
		after.next, before.prev = ctx, ctx
	})
}

// AddAfter inserts h immediately after the context named target.
func (p *Pipeline) AddAfter(target, name string, h Handler) error {
	return p.insert(name, h, nil, func(ctx *HandlerContext) {
		after := p.byName[target]
		before := after.next
		ctx.prev, ctx.next = after, before
		after.next, before.prev = ctx, ctx
	})
}

// Remove unlinks the context named name from the chain.
func (p *Pipeline) Remove(name string) error {
	return p.mutate(func() error {
		ctx, ok := p.byName[name]
		if !ok {
			return fmt.Errorf("pipeline: no handler named %q", name)
		}
		ctx.prev.next = ctx.next
		ctx.next.prev = ctx.prev
		delete(p.byName, name)
		return nil
	})
}

// Replace swaps the handler named name for h, keeping the same position,
// executor, and name.
func (p *Pipeline) Replace(name string, h Handler) error {
	return p.mutate(func() error {
		ctx, ok := p.byName[name]
		if !ok {
			return fmt.Errorf("pipeline: no handler named %q", name)
		}
		ctx.handler = h
		ctx.mask = h.Mask()
		return nil
	})
}

// Get returns the context named name, or nil.
func (p *Pipeline) Get(name string) *HandlerContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byName[name]
}

// --- inbound entry points, invoked by the owning channel ---

func (p *Pipeline) FireChannelRegistered()   { p.head.FireChannelRegistered() }
func (p *Pipeline) FireChannelUnregistered() { p.head.FireChannelUnregistered() }
func (p *Pipeline) FireChannelActive()       { p.head.FireChannelActive() }
func (p *Pipeline) FireChannelInactive()     { p.head.FireChannelInactive() }
func (p *Pipeline) FireChannelRead(msg any)  { p.head.FireChannelRead(msg) }
func (p *Pipeline) FireChannelReadComplete() { p.head.FireChannelReadComplete() }
func (p *Pipeline) FireChannelWritabilityChanged() {
	p.head.FireChannelWritabilityChanged()
}
func (p *Pipeline) FireExceptionCaught(err error) { p.head.FireExceptionCaught(err) }
func (p *Pipeline) FireUserEventTriggered(evt any) { p.head.FireUserEventTriggered(evt) }

// --- outbound entry points, invoked by channel-facing API callers ---

func (p *Pipeline) Bind(addr any, promise eventloop.Promise)          { p.tail.Bind(addr, promise) }
func (p *Pipeline) Connect(remote, local any, promise eventloop.Promise) {
	p.tail.Connect(remote, local, promise)
}
func (p *Pipeline) Disconnect(promise eventloop.Promise) { p.tail.Disconnect(promise) }
func (p *Pipeline) Close(promise eventloop.Promise)      { p.tail.Close(promise) }
func (p *Pipeline) Read()                                { p.tail.Read() }
func (p *Pipeline) Write(msg any, promise eventloop.Promise) { p.tail.Write(msg, promise) }
func (p *Pipeline) Flush()                               { p.tail.Flush() }

// headHandler terminates outbound operations in the transport.
type headHandler struct {
	OutboundAdapter
	t Transport
}

func (h *headHandler) Mask() EventMask { return MaskAllOutbound }
func (h *headHandler) Bind(_ *HandlerContext, addr any, promise eventloop.Promise) {
	h.t.DoBind(addr, promise)
}
func (h *headHandler) Connect(_ *HandlerContext, remote, local any, promise eventloop.Promise) {
	h.t.DoConnect(remote, local, promise)
}
func (h *headHandler) Disconnect(_ *HandlerContext, promise eventloop.Promise) { h.t.DoDisconnect(promise) }
func (h *headHandler) Close(_ *HandlerContext, promise eventloop.Promise)      { h.t.DoClose(promise) }
func (h *headHandler) Read(_ *HandlerContext)                                  { h.t.DoRead() }
func (h *headHandler) Write(_ *HandlerContext, msg any, promise eventloop.Promise) {
	h.t.DoWrite(msg, promise)
}
func (h *headHandler) Flush(_ *HandlerContext) { h.t.DoFlush() }

// tailHandler swallows unhandled inbound events and logs unhandled
// exceptions, per the framework's rule that exceptions reaching the tail
// are logged at warn level rather than propagated further.
type tailHandler struct {
	InboundAdapter
	t Transport
}

func (h *tailHandler) Mask() EventMask { return MaskAllInbound }
func (h *tailHandler) ChannelRegistered(*HandlerContext)   {}
func (h *tailHandler) ChannelUnregistered(*HandlerContext) {}
func (h *tailHandler) ChannelActive(*HandlerContext)       {}
func (h *tailHandler) ChannelInactive(*HandlerContext)     {}
func (h *tailHandler) ChannelRead(*HandlerContext, any)    {}
func (h *tailHandler) ChannelReadComplete(*HandlerContext) {}
func (h *tailHandler) ChannelWritabilityChanged(*HandlerContext) {}
func (h *tailHandler) ExceptionCaught(_ *HandlerContext, err error) {
	h.t.Logger().Logf(eventloop.LevelWarn, "unhandled exception reached tail: %v", err)
}
func (h *tailHandler) UserEventTriggered(*HandlerContext, any) {}

var (
	_ OutboundHandler = (*headHandler)(nil)
	_ InboundHandler  = (*tailHandler)(nil)
)
