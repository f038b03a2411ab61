//go:build linux || darwin

package channel

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/joeycumines/nettle/eventloop"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// UDPChannel is a datagram-socket channel: every inbound message is an
// Envelope carrying the sender address, and every outbound message must be
// an Envelope naming the recipient, since an unconnected UDP socket has no
// implicit peer the way a TCPChannel does.
type UDPChannel struct {
	*baseChannel

	fd     int
	local  Addr
	remote Addr // set only if Connect was called, restricting Write to that peer
}

// NewUDPChannel constructs an unbound UDPChannel.
func NewUDPChannel(opts ...Option) *UDPChannel {
	uc := &UDPChannel{fd: -1}
	uc.baseChannel = newBaseChannel(uc, resolveConfig(opts))
	return uc
}

func (uc *UDPChannel) bind(addr Addr) error {
	a, ok := addr.(DatagramAddr)
	if !ok {
		return ErrUnsupportedMessageType
	}
	if uc.fd < 0 {
		fd, err := newDatagramSocket(a.Host)
		if err != nil {
			return err
		}
		uc.fd = fd
	}
	if err := bindSocket(uc.fd, addr); err != nil {
		return err
	}
	if sa, err := localSockaddr(uc.fd); err == nil {
		uc.local = addrFromSockaddr(sa, "udp")
	}
	return nil
}

// connect restricts the socket to a single peer, per UDP's "connected
// datagram socket" convention: writes thereafter don't need an addressed
// Envelope, and reads only deliver that peer's datagrams. Used for the
// explicit Channel.Connect path; Write still accepts a plain Envelope.
func (uc *UDPChannel) connect(remote, local Addr) error {
	r, ok := remote.(DatagramAddr)
	if !ok {
		return ErrUnsupportedMessageType
	}
	if uc.fd < 0 {
		fd, err := newDatagramSocket(r.Host)
		if err != nil {
			return err
		}
		uc.fd = fd
	}
	if local != nil {
		if err := bindSocket(uc.fd, local); err != nil {
			return err
		}
	}
	sa, err := sockaddrFor(r.Host, r.Port)
	if err != nil {
		return err
	}
	if err := unix.Connect(uc.fd, sa); err != nil {
		return err
	}
	uc.remote = r
	if lsa, err := localSockaddr(uc.fd); err == nil {
		uc.local = addrFromSockaddr(lsa, "udp")
	}
	return nil
}

func (uc *UDPChannel) disconnect() error {
	uc.remote = nil
	return nil
}

func (uc *UDPChannel) closeTransport() error {
	if uc.fd < 0 {
		return nil
	}
	fd := uc.fd
	uc.fd = -1
	return unix.Close(fd)
}

func (uc *UDPChannel) readOnce(sizeHint int) (any, bool, error) {
	if uc.fd < 0 {
		return nil, false, ErrTransportClosed
	}
	p := make([]byte, sizeHint)
	n, from, err := unix.Recvfrom(uc.fd, p, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	var sender Addr
	if from != nil {
		sender = addrFromSockaddr(from, "udp")
	} else {
		sender = uc.remote
	}
	payload := make([]byte, n)
	copy(payload, p[:n])
	return Envelope{Sender: sender, Recipient: uc.local, Payload: payload}, true, nil
}

func (uc *UDPChannel) writeFront(msg any, _ int) (int, bool, error) {
	if uc.fd < 0 {
		return 0, false, ErrTransportClosed
	}
	env, ok := msg.(Envelope)
	if !ok {
		return 0, false, ErrUnsupportedMessageType
	}
	recipient := env.Recipient
	if recipient == nil {
		recipient = uc.remote
	}
	if recipient == nil {
		return 0, false, ErrUnsupportedMessageType
	}
	d, ok := recipient.(DatagramAddr)
	if !ok {
		return 0, false, ErrUnsupportedMessageType
	}
	sa, err := sockaddrFor(d.Host, d.Port)
	if err != nil {
		return 0, false, err
	}
	if err := unix.Sendto(uc.fd, env.Payload, 0, sa); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	// datagrams are all-or-nothing: a successful Sendto always consumes the
	// whole payload, so the entry is always fully written in one call.
	return 1, true, nil
}

func (uc *UDPChannel) localAddr() Addr  { return uc.local }
func (uc *UDPChannel) remoteAddr() Addr { return uc.remote }

// connectionless reports that Bind alone makes this channel usable for
// send/receive; unlike a stream socket, a datagram socket needs no
// handshake to exchange data with an arbitrary peer.
func (uc *UDPChannel) connectionless() bool { return true }

func (uc *UDPChannel) registerIO(loop *eventloop.Loop, onReadable, onWritable func()) error {
	return loop.RegisterFD(uc.fd, eventloop.EventRead, func(ev eventloop.IOEvents) {
		if ev&eventloop.EventWrite != 0 {
			onWritable()
		}
		if ev&eventloop.EventRead != 0 {
			onReadable()
		}
	})
}

func (uc *UDPChannel) unregisterIO(loop *eventloop.Loop) error {
	if uc.fd < 0 {
		return nil
	}
	return loop.UnregisterFD(uc.fd)
}

func (uc *UDPChannel) setWriteInterest(loop *eventloop.Loop, want bool) error {
	if uc.fd < 0 {
		return nil
	}
	events := eventloop.EventRead
	if want {
		events |= eventloop.EventWrite
	}
	return loop.ModifyFD(uc.fd, events)
}

// JoinGroup joins the multicast group addr on the named network interface
// (empty ifaceName picks the system default), using golang.org/x/net's
// ipv4/ipv6 packet-connection helpers rather than hand-rolled IP_ADD_MEMBERSHIP
// setsockopt calls.
func (uc *UDPChannel) JoinGroup(ifaceName string, group net.IP) error {
	return uc.withPacketConn(group, ifaceName, func(pc4 *ipv4.PacketConn, pc6 *ipv6.PacketConn, ifi *net.Interface, gaddr net.Addr) error {
		if pc4 != nil {
			return pc4.JoinGroup(ifi, gaddr)
		}
		return pc6.JoinGroup(ifi, gaddr)
	})
}

// LeaveGroup leaves a previously joined multicast group.
func (uc *UDPChannel) LeaveGroup(ifaceName string, group net.IP) error {
	return uc.withPacketConn(group, ifaceName, func(pc4 *ipv4.PacketConn, pc6 *ipv6.PacketConn, ifi *net.Interface, gaddr net.Addr) error {
		if pc4 != nil {
			return pc4.LeaveGroup(ifi, gaddr)
		}
		return pc6.LeaveGroup(ifi, gaddr)
	})
}

// withPacketConn wraps the channel's raw fd in a *net.UDPConn (via
// os.NewFile/net.FilePacketConn) just long enough to drive an
// ipv4/ipv6.PacketConn operation; the wrapping conn is discarded afterward
// and the raw fd, still registered with the loop's poller, is untouched.
func (uc *UDPChannel) withPacketConn(group net.IP, ifaceName string, fn func(*ipv4.PacketConn, *ipv6.PacketConn, *net.Interface, net.Addr) error) error {
	if uc.fd < 0 {
		return ErrTransportClosed
	}
	dup, err := unix.Dup(uc.fd)
	if err != nil {
		return err
	}
	f := os.NewFile(uintptr(dup), "udp")
	defer f.Close()
	pc, err := net.FilePacketConn(f)
	if err != nil {
		return err
	}
	defer pc.Close()

	var ifi *net.Interface
	if ifaceName != "" {
		ifi, err = net.InterfaceByName(ifaceName)
		if err != nil {
			return err
		}
	}

	if v4 := group.To4(); v4 != nil {
		gaddr := &net.UDPAddr{IP: v4}
		return fn(ipv4.NewPacketConn(pc), nil, ifi, gaddr)
	}
	gaddr := &net.UDPAddr{IP: group}
	return fn(nil, ipv6.NewPacketConn(pc), ifi, gaddr)
}

var (
	_ transportOps   = (*UDPChannel)(nil)
	_ fdAware        = (*UDPChannel)(nil)
	_ connectionless = (*UDPChannel)(nil)
	_ Channel        = (*UDPChannel)(nil)
)
