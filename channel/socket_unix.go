//go:build linux || darwin

package channel

import (
	"net"

	"golang.org/x/sys/unix"
)

// resolveIP turns a StreamAddr/DatagramAddr host into a 4- or 16-byte IP,
// preferring a literal IP (the common case once a name resolver has
// already run) and falling back to net.ResolveIPAddr for convenience in
// tests and simple programs that pass a hostname directly.
func resolveIP(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	if host == "" {
		return net.IPv4zero, nil
	}
	addr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}

func sockaddrFor(host string, port int) (unix.Sockaddr, error) {
	ip, err := resolveIP(host)
	if err != nil {
		return nil, err
	}
	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return sa, nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return nil, ErrTransportIO
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], v6)
	return sa, nil
}

func addrFromSockaddr(sa unix.Sockaddr, network string) Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		host := net.IP(s.Addr[:]).String()
		return addrFor(network, host, s.Port)
	case *unix.SockaddrInet6:
		host := net.IP(s.Addr[:]).String()
		return addrFor(network, host, s.Port)
	default:
		return nil
	}
}

func addrFor(network, host string, port int) Addr {
	if network == "udp" {
		return DatagramAddr{Host: host, Port: port}
	}
	return StreamAddr{Host: host, Port: port}
}

// newStreamSocket creates a non-blocking TCP socket, 4 or 6 per host.
func newStreamSocket(host string) (int, error) {
	domain := unix.AF_INET
	if ip, err := resolveIP(host); err == nil && ip.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return fd, nil
}

func newDatagramSocket(host string) (int, error) {
	domain := unix.AF_INET
	if ip, err := resolveIP(host); err == nil && ip.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return fd, nil
}

func bindSocket(fd int, addr Addr) error {
	var host string
	var port int
	switch a := addr.(type) {
	case StreamAddr:
		host, port = a.Host, a.Port
	case DatagramAddr:
		host, port = a.Host, a.Port
	default:
		return ErrUnsupportedMessageType
	}
	sa, err := sockaddrFor(host, port)
	if err != nil {
		return err
	}
	return unix.Bind(fd, sa)
}

func localSockaddr(fd int) (unix.Sockaddr, error) { return unix.Getsockname(fd) }
func peerSockaddr(fd int) (unix.Sockaddr, error)  { return unix.Getpeername(fd) }

// socketError reads SO_ERROR off fd, the standard way to learn the real
// outcome of a non-blocking connect once the fd reports writable: a zero
// Errno means the connect succeeded, any other value is the errno that
// would have been returned had the connect been blocking.
func socketError(fd int) (unix.Errno, error) {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, err
	}
	return unix.Errno(errno), nil
}
