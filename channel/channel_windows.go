//go:build windows

package channel

import (
	"errors"

	"github.com/joeycumines/nettle/eventloop"
)

// ErrPlatformUnsupported is the value the raw-socket transport
// constructors panic with on platforms where the poller backend doesn't support
// direct fd/handle registration for stream and datagram sockets yet.
// eventloop's own Windows poller (poller_windows.go) is itself a
// reduced-feature WSAPoll-backed implementation, and on windows no fd is
// registered with it (there is no wake fd there either); extending it to arbitrary registered sockets is tracked separately
// from this framework's core (event loop, pipeline, buffer) scope.
var ErrPlatformUnsupported = errors.New("channel: raw socket transports are not implemented on windows")

// NewTCPChannel is unavailable on windows; see ErrPlatformUnsupported.
func NewTCPChannel(opts ...Option) *TCPChannel { panic(ErrPlatformUnsupported) }

// NewUDPChannel is unavailable on windows; see ErrPlatformUnsupported.
func NewUDPChannel(opts ...Option) *UDPChannel { panic(ErrPlatformUnsupported) }

// NewTCPServerChannel is unavailable on windows; see ErrPlatformUnsupported.
func NewTCPServerChannel(loop *eventloop.Loop, accept AcceptHandler, childOpts ...Option) *TCPServerChannel {
	panic(ErrPlatformUnsupported)
}

// AcceptHandler mirrors the unix build's callback type.
type AcceptHandler func(child *TCPChannel) *eventloop.Loop

// TCPChannel is an opaque, unusable placeholder on windows.
type TCPChannel struct{ *baseChannel }

// UDPChannel is an opaque, unusable placeholder on windows.
type UDPChannel struct{ *baseChannel }

// TCPServerChannel is an opaque, unusable placeholder on windows.
type TCPServerChannel struct{}
