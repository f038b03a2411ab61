// Package resolver turns an unresolved hostname/port address into a
// concrete, dialable address, as a pluggable step ahead of
// channel.Connect rather than something baked into the channel layer
// itself.
package resolver

import (
	"context"
	"net"

	"github.com/joeycumines/nettle/channel"
	"github.com/joeycumines/nettle/eventloop"
)

// NameResolver resolves channel.UnresolvedAddr values into a concrete
// channel.Addr (StreamAddr/DatagramAddr), asynchronously and off the
// calling loop goroutine, settling the returned Promise back on loop.
type NameResolver interface {
	// IsResolved reports whether addr already names a concrete endpoint
	// and therefore needs no resolution step.
	IsResolved(addr channel.Addr) bool
	// Resolve resolves addr, settling the returned Promise with the
	// concrete channel.Addr (or a failure) once resolution completes.
	// The promise always settles on loop, matching every other
	// asynchronous operation's same-loop completion guarantee.
	Resolve(loop *eventloop.Loop, addr channel.Addr) eventloop.Promise
}

// DNSResolver resolves channel.UnresolvedAddr via the standard library's
// resolver (net.Resolver.LookupIPAddr, a blocking call that Resolve runs
// through Promisify), not a hand-rolled DNS
// wire codec: this framework's core stops at the pluggable NameResolver
// interface, and a from-scratch decoder is explicitly out of scope for it.
type DNSResolver struct {
	// Resolver is used for the actual lookup; a nil value uses
	// net.DefaultResolver.
	Resolver *net.Resolver
}

// NewDNSResolver constructs a DNSResolver using net.DefaultResolver.
func NewDNSResolver() *DNSResolver { return &DNSResolver{} }

func (r *DNSResolver) resolver() *net.Resolver {
	if r.Resolver != nil {
		return r.Resolver
	}
	return net.DefaultResolver
}

// IsResolved reports true for every channel.Addr kind except
// channel.UnresolvedAddr, which always requires a Resolve call.
func (r *DNSResolver) IsResolved(addr channel.Addr) bool {
	_, unresolved := addr.(channel.UnresolvedAddr)
	return !unresolved
}

// Resolve looks up addr.Hostname and settles the returned Promise with a
// channel.StreamAddr or channel.DatagramAddr (matching addr.Datagram)
// using the first resolved IP address. Non-UnresolvedAddr values settle
// immediately with themselves, since IsResolved already reports them
// resolved. The actual lookup runs via loop.Promisify, since the standard
// library's resolver has no native non-blocking API; Promisify supplies
// the panic/Goexit safety and the settle-back-on-loop guarantee this
// method would otherwise have to hand-roll.
func (r *DNSResolver) Resolve(loop *eventloop.Loop, addr channel.Addr) eventloop.Promise {
	u, ok := addr.(channel.UnresolvedAddr)
	if !ok {
		p := loop.NewPromise()
		if err := loop.Submit(func() { p.Succeed(addr) }); err != nil {
			p.Fail(err)
		}
		return p
	}
	return loop.Promisify(context.Background(), func(ctx context.Context) (any, error) {
		ips, err := r.resolver().LookupIPAddr(ctx, u.Hostname)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, &net.DNSError{Err: "no addresses found", Name: u.Hostname}
		}
		host := ips[0].IP.String()
		if u.Datagram {
			return channel.DatagramAddr{Host: host, Port: u.Port}, nil
		}
		return channel.StreamAddr{Host: host, Port: u.Port}, nil
	})
}

var _ NameResolver = (*DNSResolver)(nil)
