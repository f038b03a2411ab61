//go:build linux || darwin

package channel

import (
	"errors"

	"github.com/joeycumines/nettle/eventloop"
	"golang.org/x/sys/unix"
)

// AcceptHandler is invoked on the listening channel's loop goroutine once
// per accepted connection, before the child channel is registered, so
// callers can install a pipeline and per-child config before any inbound
// event can fire. The returned Loop is the one the child registers on
// (e.g. the next loop in a child event-loop group); a nil return falls
// back to the listening channel's own loop.
type AcceptHandler func(child *TCPChannel) *eventloop.Loop

// TCPServerChannel is a listening stream socket: it never carries payload
// data itself, only accepted-connection notifications, mirroring the
// external framework's split between a listening channel and the child
// channels it spawns.
type TCPServerChannel struct {
	loop     *eventloop.Loop
	fd       int
	local    Addr
	backlog  int
	accept   AcceptHandler
	childCfg []Option
}

// NewTCPServerChannel constructs an unbound TCPServerChannel. accept is
// called on the loop goroutine for every accepted connection; childOpts are
// applied when constructing each child TCPChannel.
func NewTCPServerChannel(loop *eventloop.Loop, accept AcceptHandler, childOpts ...Option) *TCPServerChannel {
	return &TCPServerChannel{loop: loop, fd: -1, backlog: 1024, accept: accept, childCfg: childOpts}
}

// Bind creates, binds, and starts listening on addr, then registers the
// listening fd's readability with the owning Loop's poller. Safe to call
// from any goroutine: RegisterFD is poller-synchronized, and no accept
// callback can fire before it returns.
func (s *TCPServerChannel) Bind(addr Addr) error {
	a, ok := addr.(StreamAddr)
	if !ok {
		return ErrUnsupportedMessageType
	}
	fd, err := newStreamSocket(a.Host)
	if err != nil {
		return err
	}
	if err := bindSocket(fd, addr); err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := unix.Listen(fd, s.backlog); err != nil {
		_ = unix.Close(fd)
		return err
	}
	s.fd = fd
	if sa, err := localSockaddr(fd); err == nil {
		s.local = addrFromSockaddr(sa, "tcp")
	} else {
		s.local = addr
	}
	return s.loop.RegisterFD(fd, eventloop.EventRead, func(eventloop.IOEvents) { s.acceptLoop() })
}

// LocalAddr returns the bound address, or nil before Bind succeeds.
func (s *TCPServerChannel) LocalAddr() Addr { return s.local }

// Close stops accepting and releases the listening fd.
func (s *TCPServerChannel) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	_ = s.loop.UnregisterFD(fd)
	return unix.Close(fd)
}

// acceptLoop drains every connection currently queued on the listening
// socket, constructing and handing off one TCPChannel per accepted fd. It
// never blocks: accept4 is non-blocking and EAGAIN ends the drain.
func (s *TCPServerChannel) acceptLoop() {
	for {
		if s.fd < 0 {
			return
		}
		nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			if errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		remote := addrFromSockaddr(sa, "tcp")
		local := s.local
		if lsa, err := localSockaddr(nfd); err == nil {
			local = addrFromSockaddr(lsa, "tcp")
		}
		child := newAcceptedTCPChannel(nfd, local, remote, s.childCfg...)
		childLoop := s.loop
		if s.accept != nil {
			if l := s.accept(child); l != nil {
				childLoop = l
			}
		}
		child.Register(childLoop).OnComplete(func(p eventloop.Promise) {
			if _, err := p.Result(); err != nil {
				child.Close()
			}
		})
	}
}
