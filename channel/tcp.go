//go:build linux || darwin

package channel

import (
	"errors"
	"fmt"

	"github.com/joeycumines/nettle/buf"
	"github.com/joeycumines/nettle/eventloop"
	"golang.org/x/sys/unix"
)

// TCPChannel is a stream-socket channel backed by a raw, non-blocking file
// descriptor registered directly with the owning Loop's poller — the
// framework never hands the socket to the Go runtime's own netpoller, so
// all readiness dispatch stays on the single owning loop goroutine per the
// concurrency model.
type TCPChannel struct {
	*baseChannel

	fd            int
	accepted      bool
	local         Addr
	remote        Addr
	pendingRemote Addr // remote passed to connect, confirmed once pollConnect succeeds
	connecting    bool // true between an EINPROGRESS connect() and its pollConnect resolution
}

// NewTCPChannel constructs an unconnected, unbound TCPChannel.
func NewTCPChannel(opts ...Option) *TCPChannel {
	tc := &TCPChannel{fd: -1}
	tc.baseChannel = newBaseChannel(tc, resolveConfig(opts))
	return tc
}

// newAcceptedTCPChannel wraps an already-connected fd obtained by a
// TCPServerChannel's accept loop.
func newAcceptedTCPChannel(fd int, local, remote Addr, opts ...Option) *TCPChannel {
	tc := &TCPChannel{fd: fd, local: local, remote: remote, accepted: true}
	tc.baseChannel = newBaseChannel(tc, resolveConfig(opts))
	return tc
}

func (tc *TCPChannel) alreadyConnected() bool { return tc.accepted }

func (tc *TCPChannel) bind(addr Addr) error {
	if tc.fd < 0 {
		host := ""
		if a, ok := addr.(StreamAddr); ok {
			host = a.Host
		}
		fd, err := newStreamSocket(host)
		if err != nil {
			return err
		}
		tc.fd = fd
	}
	if err := bindSocket(tc.fd, addr); err != nil {
		return err
	}
	if sa, err := localSockaddr(tc.fd); err == nil {
		tc.local = addrFromSockaddr(sa, "tcp")
	}
	return nil
}

// connect issues a non-blocking unix.Connect. A handshake that doesn't
// complete synchronously reports EINPROGRESS, which is not an error here:
// it means the caller (baseChannel.DoConnect, via the asyncConnect
// capability) must wait for the fd to become writable and then call
// pollConnect to learn the real outcome, rather than treating connect's
// immediate return as success the way a connectionless transport would.
func (tc *TCPChannel) connect(remote, local Addr) error {
	r, ok := remote.(StreamAddr)
	if !ok {
		return ErrUnsupportedMessageType
	}
	if tc.fd < 0 {
		fd, err := newStreamSocket(r.Host)
		if err != nil {
			return err
		}
		tc.fd = fd
	}
	if local != nil {
		if err := bindSocket(tc.fd, local); err != nil {
			return err
		}
	}
	sa, err := sockaddrFor(r.Host, r.Port)
	if err != nil {
		return err
	}
	err = unix.Connect(tc.fd, sa)
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		return err
	}
	tc.pendingRemote = r
	tc.connecting = errors.Is(err, unix.EINPROGRESS)
	if !tc.connecting {
		tc.remote = r
		if lsa, err := localSockaddr(tc.fd); err == nil {
			tc.local = addrFromSockaddr(lsa, "tcp")
		}
	}
	return nil
}

// connectPending and pollConnect satisfy the asyncConnect capability:
// baseChannel.DoConnect defers the promise and the channel-active
// transition until pollConnect reports the real result of a connect that
// returned EINPROGRESS.
func (tc *TCPChannel) connectPending() bool { return tc.connecting }

func (tc *TCPChannel) pollConnect() error {
	tc.connecting = false
	errno, err := socketError(tc.fd)
	if err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	tc.remote = tc.pendingRemote
	if lsa, err := localSockaddr(tc.fd); err == nil {
		tc.local = addrFromSockaddr(lsa, "tcp")
	}
	return nil
}

func (tc *TCPChannel) disconnect() error {
	return tc.closeTransport()
}

func (tc *TCPChannel) closeTransport() error {
	if tc.fd < 0 {
		return nil
	}
	fd := tc.fd
	tc.fd = -1
	return unix.Close(fd)
}

func (tc *TCPChannel) readOnce(sizeHint int) (any, bool, error) {
	if tc.fd < 0 {
		return nil, false, ErrTransportClosed
	}
	b, err := tc.config.Allocator.Buffer(sizeHint, sizeHint)
	if err != nil {
		return nil, false, err
	}
	p := make([]byte, sizeHint)
	n, err := unix.Read(tc.fd, p)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			b.Release()
			return nil, false, nil
		}
		b.Release()
		return nil, false, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	if n == 0 {
		b.Release()
		return nil, false, ErrTransportClosed
	}
	if _, err := b.Write(p[:n]); err != nil {
		b.Release()
		return nil, false, err
	}
	return b, true, nil
}

func (tc *TCPChannel) writeFront(msg any, written int) (int, bool, error) {
	if tc.fd < 0 {
		return 0, false, ErrTransportClosed
	}
	var data []byte
	switch m := msg.(type) {
	case []byte:
		data = m
	case buf.Buffer:
		data = m.Bytes()
	default:
		return 0, false, ErrUnsupportedMessageType
	}
	if written >= len(data) {
		return 0, true, nil
	}
	n, err := unix.Write(tc.fd, data[written:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	return n, written+n >= len(data), nil
}

func (tc *TCPChannel) localAddr() Addr  { return tc.local }
func (tc *TCPChannel) remoteAddr() Addr { return tc.remote }

func (tc *TCPChannel) registerIO(loop *eventloop.Loop, onReadable, onWritable func()) error {
	return loop.RegisterFD(tc.fd, eventloop.EventRead, func(ev eventloop.IOEvents) {
		if ev&eventloop.EventWrite != 0 {
			onWritable()
		}
		if ev&(eventloop.EventRead|eventloop.EventHangup|eventloop.EventError) != 0 {
			onReadable()
		}
	})
}

func (tc *TCPChannel) unregisterIO(loop *eventloop.Loop) error {
	if tc.fd < 0 {
		return nil
	}
	return loop.UnregisterFD(tc.fd)
}

func (tc *TCPChannel) setWriteInterest(loop *eventloop.Loop, want bool) error {
	if tc.fd < 0 {
		return nil
	}
	events := eventloop.EventRead
	if want {
		events |= eventloop.EventWrite
	}
	return loop.ModifyFD(tc.fd, events)
}

var (
	_ transportOps = (*TCPChannel)(nil)
	_ fdAware      = (*TCPChannel)(nil)
	_ preConnected = (*TCPChannel)(nil)
	_ asyncConnect = (*TCPChannel)(nil)
	_ Channel      = (*TCPChannel)(nil)
)
