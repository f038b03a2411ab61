package channel

import "sync"

// localRegistry is the process-wide directory of listening LocalChannel
// endpoints, keyed by LocalAddr.ID, mirroring the external local-transport
// interface's "endpoint registry" requirement.
var localRegistry = struct {
	mu        sync.Mutex
	listeners map[string]*LocalListener
}{listeners: make(map[string]*LocalListener)}

// LocalListener accepts incoming LocalChannel connections addressed to a
// bound LocalAddr, analogous to a TCP listening channel but for the
// in-process transport.
type LocalListener struct {
	addr    LocalAddr
	backlog chan *LocalChannel
	closed  chan struct{}
	once    sync.Once
}

// ListenLocal registers a LocalListener under id, replacing any prior
// listener at that id. Accept blocks until a peer Dials the same id.
func ListenLocal(id string) *LocalListener {
	l := &LocalListener{addr: LocalAddr{ID: id}, backlog: make(chan *LocalChannel, 128), closed: make(chan struct{})}
	localRegistry.mu.Lock()
	localRegistry.listeners[id] = l
	localRegistry.mu.Unlock()
	return l
}

// Accept blocks until a peer channel arrives, or the listener is closed.
func (l *LocalListener) Accept() (*LocalChannel, bool) {
	select {
	case ch := <-l.backlog:
		return ch, true
	case <-l.closed:
		return nil, false
	}
}

// Close stops accepting new connections at this id.
func (l *LocalListener) Close() {
	l.once.Do(func() {
		localRegistry.mu.Lock()
		delete(localRegistry.listeners, l.addr.ID)
		localRegistry.mu.Unlock()
		close(l.closed)
	})
}

// localPipe is the shared, message-oriented transport underlying a pair of
// connected LocalChannels: each side reads from its own inbox, which the
// peer writes into.
type localPipe struct {
	inbox chan any
}

func newLocalPipe() *localPipe { return &localPipe{inbox: make(chan any, 256)} }

// LocalChannel is an in-process, message-passing (not byte-stream)
// channel: messages written on one side are delivered whole to the other
// side's inbound pipeline, with no encoding in between. Suited to
// same-process producer/consumer wiring and to tests that want the full
// pipeline/write-buffer/back-pressure machinery without real sockets.
type LocalChannel struct {
	*baseChannel

	self *localPipe
	peer *LocalChannel
	local  LocalAddr
	remote LocalAddr
}

// NewLocalChannel constructs an unconnected LocalChannel; call Connect with
// a LocalAddr registered via ListenLocal, or use DialLocal for the common
// client-side case.
func NewLocalChannel(opts ...Option) *LocalChannel {
	lc := &LocalChannel{self: newLocalPipe()}
	lc.baseChannel = newBaseChannel(lc, resolveConfig(opts))
	return lc
}

// DialLocal connects a fresh LocalChannel to the listener registered at id,
// handing the listener a paired server-side LocalChannel via its Accept
// backlog. Returns ErrTransportClosed if no listener is registered at id.
func DialLocal(id string, opts ...Option) (*LocalChannel, error) {
	localRegistry.mu.Lock()
	l, ok := localRegistry.listeners[id]
	localRegistry.mu.Unlock()
	if !ok {
		return nil, ErrTransportClosed
	}

	client := NewLocalChannel(opts...)
	server := NewLocalChannel(opts...)
	client.peer, server.peer = server, client
	client.remote, server.remote = LocalAddr{ID: id}, LocalAddr{ID: "client:" + id}
	client.local = LocalAddr{ID: "client:" + id}
	server.local = LocalAddr{ID: id}

	select {
	case l.backlog <- server:
	case <-l.closed:
		return nil, ErrTransportClosed
	}
	return client, nil
}

func (lc *LocalChannel) bind(addr Addr) error {
	a, ok := addr.(LocalAddr)
	if !ok {
		return ErrUnsupportedMessageType
	}
	lc.local = a
	return nil
}

func (lc *LocalChannel) connect(remote, local Addr) error {
	if lc.peer == nil {
		return ErrTransportClosed
	}
	if r, ok := remote.(LocalAddr); ok {
		lc.remote = r
	}
	if l, ok := local.(LocalAddr); ok {
		lc.local = l
	}
	return nil
}

func (lc *LocalChannel) disconnect() error {
	lc.peer = nil
	return nil
}

func (lc *LocalChannel) closeTransport() error {
	lc.peer = nil
	return nil
}

func (lc *LocalChannel) readOnce(int) (any, bool, error) {
	select {
	case msg, ok := <-lc.self.inbox:
		if !ok {
			return nil, false, ErrTransportClosed
		}
		return msg, true, nil
	default:
		return nil, false, nil
	}
}

func (lc *LocalChannel) writeFront(msg any, _ int) (int, bool, error) {
	if lc.peer == nil {
		return 0, false, ErrTransportClosed
	}
	select {
	case lc.peer.self.inbox <- msg:
		if lc.peer.loop != nil {
			lc.peer.onReadable()
		}
		return 0, true, nil
	default:
		return 0, false, nil
	}
}

func (lc *LocalChannel) localAddr() Addr  { return lc.local }
func (lc *LocalChannel) remoteAddr() Addr { return lc.remote }

var (
	_ transportOps = (*LocalChannel)(nil)
	_ Channel      = (*LocalChannel)(nil)
)
