package channel

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/nettle/eventloop"
	"github.com/joeycumines/nettle/pipeline"
)

// ChannelState is the channel lifecycle vocabulary named by the framework's
// data model: transitions are strictly monotone toward Closed.
type ChannelState int32

const (
	StateUnregistered ChannelState = iota
	StateRegistered
	StateActive
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is a full-duplex endpoint: the unit of I/O and of pipeline
// ownership. Every concrete transport (local, TCP, UDP) is a *baseChannel
// configured with a transportOps implementation.
type Channel interface {
	ID() string
	LocalAddr() Addr
	RemoteAddr() Addr
	State() ChannelState
	Config() *Config
	Pipeline() *pipeline.Pipeline
	Loop() *eventloop.Loop
	IsActive() bool
	IsWritable() bool

	// Register binds the channel to loop. Must be called exactly once,
	// before any other operation.
	Register(loop *eventloop.Loop) eventloop.Promise
	Bind(addr Addr) eventloop.Promise
	Connect(remote, local Addr) eventloop.Promise
	Disconnect() eventloop.Promise
	Close() eventloop.Promise
	Read()
	Write(msg any) eventloop.Promise
	Flush()
}

// transportOps is the narrow strategy interface each concrete transport
// (local.go, tcp.go, udp.go) implements; baseChannel supplies everything
// else (state machine, write buffer, pipeline wiring, promise plumbing)
// common to every transport kind, following the framework's own
// head/"unsafe" split rather than a deep inheritance hierarchy.
type transportOps interface {
	// bind associates the transport with a local address.
	bind(addr Addr) error
	// connect initiates (or completes, for connectionless transports)
	// association with a remote address. Returns immediately for
	// connectionless transports; a connection-oriented one whose handshake
	// is still in progress reports that through the asyncConnect
	// capability instead.
	connect(remote, local Addr) error
	// disconnect severs a connectionless transport's peer association.
	disconnect() error
	// closeTransport releases the underlying resource. Idempotent.
	closeTransport() error
	// readOnce performs one bounded read attempt, sized by sizeHint.
	// Returns a nil msg with ok=false and no error when there is nothing
	// more to read right now (not an error condition); returns err non-nil
	// only on a genuine transport failure.
	readOnce(sizeHint int) (msg any, ok bool, err error)
	// writeFront attempts to advance the write of the front flushed entry.
	// For []byte-backed messages, written is how many bytes were already
	// handed to the transport in a previous partial write. Returns
	// newlyWritten bytes and done=true once the whole message has been
	// accepted by the transport.
	writeFront(msg any, written int) (newlyWritten int, done bool, err error)
	localAddr() Addr
	remoteAddr() Addr
}

// fdAware is implemented by transports that need to hook into the owning
// loop's I/O poller (TCP, UDP); local channels have no fd and so implement
// none of this.
type fdAware interface {
	registerIO(loop *eventloop.Loop, onReadable func(), onWritable func()) error
	unregisterIO(loop *eventloop.Loop) error
	setWriteInterest(loop *eventloop.Loop, want bool) error
}

// preConnected is implemented by transports constructed already connected
// (an accepted TCP socket, a UDP socket bound and ready to send/receive):
// Register should bring the channel straight to Active instead of waiting
// for a separate Connect call.
type preConnected interface {
	alreadyConnected() bool
}

// connectionless is implemented by transports with no separate connect
// handshake (UDP): per the framework's "registered -> active on successful
// bind/connect" lifecycle rule, Bind alone must activate these, since a
// datagram socket is usable for send/receive the moment it is bound and
// may never have Connect called on it at all.
type connectionless interface {
	connectionless() bool
}

// asyncConnect is implemented by transports whose connect may not complete
// synchronously (TCP's non-blocking unix.Connect, which commonly returns
// EINPROGRESS): instead of settling the promise and firing channel-active
// as soon as connect() returns, baseChannel.DoConnect defers both until the
// fd reports writable and pollConnect confirms the handshake actually
// succeeded, per the framework's "active only once connected" rule.
type asyncConnect interface {
	// connectPending reports whether the connect just issued by
	// transportOps.connect is still in progress and must be resolved later
	// via pollConnect rather than treated as already complete.
	connectPending() bool
	// pollConnect is called once the fd becomes writable; it reads back the
	// real outcome (SO_ERROR) and returns nil on success or the connection
	// error otherwise.
	pollConnect() error
}

// baseChannel implements Channel and pipeline.Transport, driving the
// common state machine, write buffer, and pipeline plumbing over an
// injected transportOps. Every field is only ever mutated on the owning
// loop once registered; prior to registration only the constructing
// goroutine touches it.
type baseChannel struct {
	id     string
	ops    transportOps
	config *Config

	state  atomic.Int32
	loop   *eventloop.Loop
	pl     *pipeline.Pipeline
	wb     *WriteBuffer
	recvEstimator ReceiveBufferAllocator

	local  Addr
	remote Addr

	registerOnce sync.Once
	closeOnce    sync.Once

	shutdownHookRemove func()

	// pendingConnect holds the promise for an in-flight asyncConnect
	// handshake; set by DoConnect, resolved (and cleared) by
	// completeAsyncConnect once the fd becomes writable.
	pendingConnect eventloop.Promise
}

var channelSeq atomic.Uint64

func nextChannelID() string {
	return fmt.Sprintf("ch-%d", channelSeq.Add(1))
}

func newBaseChannel(ops transportOps, cfg *Config) *baseChannel {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &baseChannel{
		id:            nextChannelID(),
		ops:           ops,
		config:        cfg,
		wb:            NewWriteBuffer(cfg.LowWaterMark, cfg.HighWaterMark, cfg.SizeEstimator),
		recvEstimator: NewAdaptiveReceiveBufferAllocator(cfg.RecvBufferMin, cfg.RecvBufferInitial, cfg.RecvBufferMax),
	}
	c.pl = pipeline.New(c, c)
	return c
}

func (c *baseChannel) ID() string           { return c.id }
func (c *baseChannel) LocalAddr() Addr      { return c.local }
func (c *baseChannel) RemoteAddr() Addr     { return c.remote }
func (c *baseChannel) State() ChannelState  { return ChannelState(c.state.Load()) }
func (c *baseChannel) Config() *Config      { return c.config }
func (c *baseChannel) Pipeline() *pipeline.Pipeline { return c.pl }
func (c *baseChannel) Loop() *eventloop.Loop { return c.loop }
func (c *baseChannel) IsActive() bool       { return c.State() == StateActive }
func (c *baseChannel) IsWritable() bool     { return c.wb.IsWritable() }

// Submit and InEventLoop satisfy pipeline.Executor, so baseChannel itself
// can serve as the pipeline's default executor.
func (c *baseChannel) Submit(t eventloop.Task) error { return c.loop.Submit(t) }
func (c *baseChannel) InEventLoop() bool             { return c.loop != nil && c.loop.InEventLoop() }

// Logger satisfies pipeline.Transport, giving the pipeline's tail handler
// access to the owning loop's ambient logger. Before Register, c.loop is
// nil, so this reports a noop logger rather than panicking.
func (c *baseChannel) Logger() eventloop.Logger {
	if c.loop == nil {
		return eventloop.NewNoopLogger()
	}
	return c.loop.Logger()
}

// Register binds the channel to loop, firing channel-registered inbound
// once the binding is established on the loop.
func (c *baseChannel) Register(loop *eventloop.Loop) eventloop.Promise {
	p := loop.NewPromise()
	first := false
	c.registerOnce.Do(func() {
		first = true
		c.loop = loop
		run := func() {
			if !loop.CanRegister() {
				p.Fail(ErrShutdownInProgress)
				return
			}
			c.state.Store(int32(StateRegistered))
			c.shutdownHookRemove = loop.TrackForShutdown(func() { _, _ = c.doCloseSync() })
			c.pl.FireChannelRegistered()
			if pc, ok := c.ops.(preConnected); ok && pc.alreadyConnected() {
				c.local = c.ops.localAddr()
				c.remote = c.ops.remoteAddr()
				c.registerFD()
				c.becomeActive()
			}
			p.Succeed(nil)
		}
		if err := loop.Submit(run); err != nil {
			p.Fail(err)
		}
	})
	if !first {
		p.Fail(ErrAlreadyRegistered)
	}
	return p
}

func (c *baseChannel) Bind(addr Addr) eventloop.Promise {
	p := c.loop.NewPromise()
	c.pl.Bind(addr, p)
	return p
}

func (c *baseChannel) Connect(remote, local Addr) eventloop.Promise {
	p := c.loop.NewPromise()
	c.pl.Connect(remote, local, p)
	return p
}

func (c *baseChannel) Disconnect() eventloop.Promise {
	p := c.loop.NewPromise()
	c.pl.Disconnect(p)
	return p
}

func (c *baseChannel) Close() eventloop.Promise {
	p := c.loop.NewPromise()
	c.pl.Close(p)
	return p
}

func (c *baseChannel) Read() { c.pl.Read() }

func (c *baseChannel) Write(msg any) eventloop.Promise {
	p := c.loop.NewPromise()
	c.pl.Write(msg, p)
	return p
}

func (c *baseChannel) Flush() { c.pl.Flush() }

// --- pipeline.Transport: terminates outbound operations in actual I/O ---

func (c *baseChannel) DoBind(addr any, promise eventloop.Promise) {
	a, ok := addr.(Addr)
	if !ok {
		promise.Fail(ErrUnsupportedMessageType)
		return
	}
	if err := c.ops.bind(a); err != nil {
		promise.Fail(err)
		return
	}
	c.local = c.ops.localAddr()
	if cl, ok := c.ops.(connectionless); ok && cl.connectionless() && c.State() != StateActive {
		c.registerFD()
		c.becomeActive()
	}
	promise.Succeed(nil)
}

func (c *baseChannel) DoConnect(remote, local any, promise eventloop.Promise) {
	r, ok := remote.(Addr)
	if !ok {
		promise.Fail(ErrUnsupportedMessageType)
		return
	}
	// local is permitted to be nil (let the transport pick an ephemeral
	// local address), but if present it must be an Addr.
	var l Addr
	if local != nil {
		l, ok = local.(Addr)
		if !ok {
			promise.Fail(ErrUnsupportedMessageType)
			return
		}
	}
	if err := c.ops.connect(r, l); err != nil {
		promise.Fail(err)
		return
	}
	if ac, ok := c.ops.(asyncConnect); ok && ac.connectPending() {
		c.registerFD()
		if fa, ok := c.ops.(fdAware); ok {
			_ = fa.setWriteInterest(c.loop, true)
		}
		c.pendingConnect = promise
		return
	}
	c.local = c.ops.localAddr()
	c.remote = c.ops.remoteAddr()
	// A connectionless transport may already be Active from a prior Bind
	// (see DoBind); don't re-register the fd or re-fire channel-active.
	if c.State() != StateActive {
		c.registerFD()
		c.becomeActive()
	}
	promise.Succeed(nil)
}

// completeAsyncConnect resolves a pending asyncConnect handshake once the
// fd reports writable: pollConnect's result decides whether the channel
// becomes active (promise succeeds) or closes (promise fails with the real
// connect error).
func (c *baseChannel) completeAsyncConnect() {
	p := c.pendingConnect
	c.pendingConnect = nil
	ac, ok := c.ops.(asyncConnect)
	if !ok {
		return
	}
	if fa, ok := c.ops.(fdAware); ok {
		_ = fa.setWriteInterest(c.loop, false)
	}
	if err := ac.pollConnect(); err != nil {
		_, _ = c.doCloseSync()
		p.Fail(err)
		return
	}
	c.local = c.ops.localAddr()
	c.remote = c.ops.remoteAddr()
	if c.State() != StateActive {
		c.becomeActive()
	}
	p.Succeed(nil)
}

// registerFD hooks the transport's fd into the owning loop's poller, for
// transports that have one. A no-op for message-passing transports like
// LocalChannel.
func (c *baseChannel) registerFD() {
	if fa, ok := c.ops.(fdAware); ok {
		_ = fa.registerIO(c.loop, c.onReadable, c.onWritable)
	}
}

func (c *baseChannel) DoDisconnect(promise eventloop.Promise) {
	if err := c.ops.disconnect(); err != nil {
		promise.Fail(err)
		return
	}
	promise.Succeed(nil)
}

func (c *baseChannel) DoClose(promise eventloop.Promise) {
	wasActive, err := c.doCloseSync()
	if err != nil {
		promise.Fail(err)
		return
	}
	_ = wasActive
	promise.Succeed(nil)
}

// doCloseSync performs the idempotent close sequence; safe to call from
// the shutdown hook (already on-loop) or from DoClose.
func (c *baseChannel) doCloseSync() (wasActive bool, err error) {
	c.closeOnce.Do(func() {
		wasActive = c.State() == StateActive
		c.state.Store(int32(StateClosed))
		if fa, ok := c.ops.(fdAware); ok && c.loop != nil {
			_ = fa.unregisterIO(c.loop)
		}
		err = c.ops.closeTransport()
		c.wb.FailAll(ErrTransportClosed)
		if c.shutdownHookRemove != nil {
			c.shutdownHookRemove()
		}
		if wasActive {
			c.pl.FireChannelInactive()
		}
		c.pl.FireChannelUnregistered()
	})
	return wasActive, err
}

func (c *baseChannel) DoRead() {
	if c.State() != StateActive {
		return
	}
	c.readLoop()
}

func (c *baseChannel) DoWrite(msg any, promise eventloop.Promise) {
	c.wb.Write(msg, promise)
}

func (c *baseChannel) DoFlush() {
	c.wb.Flush()
	c.drainWrites()
}

// becomeActive transitions Registered -> Active and fires channel-active,
// then kicks off the initial read if auto-read is on.
func (c *baseChannel) becomeActive() {
	c.state.Store(int32(StateActive))
	c.pl.FireChannelActive()
	if c.config.AutoRead {
		c.DoRead()
	}
}

// readLoop implements the read algorithm: repeat reads until zero bytes,
// the per-batch cap, or auto-read was turned off mid-batch, firing exactly
// one channel-read-complete per invocation.
func (c *baseChannel) readLoop() {
	autoReadAtStart := c.config.AutoRead
	count := 0
	for count < c.config.MaxMessagesPerRead {
		msg, ok, err := c.ops.readOnce(c.recvEstimator.Guess())
		if err != nil {
			c.pl.FireExceptionCaught(err)
			if errors.Is(err, ErrTransportClosed) {
				c.DoClose(noopPromise{})
			}
			break
		}
		if !ok {
			break
		}
		c.recvEstimator.Record(c.config.SizeEstimator.Size(msg))
		c.pl.FireChannelRead(msg)
		count++
		// A handler may have turned auto-read off from within ChannelRead;
		// stop this batch rather than continuing to pull more data.
		if autoReadAtStart && !c.config.AutoRead {
			break
		}
	}
	c.pl.FireChannelReadComplete()
}

// drainWrites implements the write algorithm: walk the flushed list,
// attempting to drain each entry; a zero-progress write re-arms writable
// interest and stops for now.
func (c *baseChannel) drainWrites() {
	wasWritable := c.wb.IsWritable()
	for {
		msg, written, ok := c.wb.FrontMessage()
		if !ok {
			break
		}
		n, done, err := c.ops.writeFront(msg, written)
		if err != nil {
			// RemoveFront succeeds the entry's promise, so detach it first
			// and fail it with the write error instead.
			entry := c.wb.Front().Value.(*writeEntry)
			wp := entry.promise
			entry.promise = nil
			c.wb.RemoveFront()
			if wp != nil {
				wp.Fail(err)
			}
			c.pl.FireExceptionCaught(err)
			continue
		}
		if n > 0 {
			c.wb.AdvanceFront(n)
		}
		if done {
			c.wb.RemoveFront()
			continue
		}
		// zero (or partial, non-terminal) progress: yield the loop and
		// wait for the next writable notification rather than spinning.
		if fa, ok := c.ops.(fdAware); ok && c.loop != nil {
			_ = fa.setWriteInterest(c.loop, true)
		}
		break
	}
	if wasWritable != c.wb.IsWritable() {
		c.pl.FireChannelWritabilityChanged()
	}
}

// onReadable is the poller/goroutine-facing entry point a registerIO
// callback invokes; it always trampolines onto the owning loop.
func (c *baseChannel) onReadable() {
	_ = c.loop.Submit(func() { c.DoRead() })
}

func (c *baseChannel) onWritable() {
	_ = c.loop.Submit(func() {
		if c.pendingConnect != nil {
			c.completeAsyncConnect()
			return
		}
		if fa, ok := c.ops.(fdAware); ok {
			_ = fa.setWriteInterest(c.loop, false)
		}
		c.drainWrites()
	})
}

// onIOError reports a fatal transport error observed off-loop (e.g. from
// a reader goroutine); trampolines the exception + close onto the loop.
func (c *baseChannel) onIOError(err error) {
	_ = c.loop.Submit(func() {
		c.pl.FireExceptionCaught(err)
		c.Logger().Logf(eventloop.LevelWarn, "channel %s: transport error: %v", c.id, err)
		c.DoClose(noopPromise{})
	})
}

// noopPromise discards its settlement; used where the caller (internal
// plumbing, not a user-facing API call) has no need of the result.
type noopPromise struct{}

func (noopPromise) State() eventloop.PromiseState          { return eventloop.Pending }
func (noopPromise) Result() (any, error)                   { return nil, nil }
func (noopPromise) OnComplete(func(eventloop.Promise))      {}
func (noopPromise) Done() <-chan struct{}                   { return closedChan }
func (noopPromise) Succeed(any) bool                        { return true }
func (noopPromise) Fail(error) bool                          { return true }
func (noopPromise) Cancel() bool                             { return true }

var closedChan = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

var (
	_ Channel            = (*baseChannel)(nil)
	_ pipeline.Transport = (*baseChannel)(nil)
	_ pipeline.Executor  = (*baseChannel)(nil)
)
