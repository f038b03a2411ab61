package channel

import "fmt"

// Addr is implemented by every endpoint address type the framework moves
// around: stream, datagram, local, and unresolved-DNS addresses.
type Addr interface {
	Network() string
	String() string
}

// StreamAddr is a stream-socket endpoint (host, port).
type StreamAddr struct {
	Host string
	Port int
}

func (a StreamAddr) Network() string { return "tcp" }
func (a StreamAddr) String() string  { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// DatagramAddr is a datagram-socket endpoint (host, port).
type DatagramAddr struct {
	Host string
	Port int
}

func (a DatagramAddr) Network() string { return "udp" }
func (a DatagramAddr) String() string  { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// LocalAddr identifies an in-process endpoint by a unique string id,
// registered in a process-wide local-transport registry.
type LocalAddr struct {
	ID string
}

func (a LocalAddr) Network() string { return "local" }
func (a LocalAddr) String() string  { return a.ID }

// UnresolvedAddr names a stream or datagram endpoint by hostname rather
// than a resolved IP, deferring resolution to a resolver.NameResolver.
type UnresolvedAddr struct {
	Hostname string
	Port     int
	Datagram bool
}

func (a UnresolvedAddr) Network() string {
	if a.Datagram {
		return "udp"
	}
	return "tcp"
}

func (a UnresolvedAddr) String() string { return fmt.Sprintf("%s:%d", a.Hostname, a.Port) }

// Envelope is the inbound/outbound message type for datagram channels:
// sender, recipient, and payload, per the framework's addressed-envelope
// data model.
type Envelope struct {
	Sender    Addr
	Recipient Addr
	Payload   []byte
}
