// Package bootstrap assembles an event-loop group, a channel factory, a
// set of channel options, and a pipeline initializer into the two
// entry points a caller actually reaches for: Bootstrap (client side)
// and ServerBootstrap (listening side with a child pipeline/loop
// group of its own).
package bootstrap

import (
	"github.com/joeycumines/nettle/channel"
	"github.com/joeycumines/nettle/eventloop"
)

// ChannelFactory constructs a fresh, unregistered Channel, applying opts
// (water-marks, auto-read, attributes, ...) at construction time. The
// concrete channel constructors (channel.NewTCPChannel,
// channel.NewUDPChannel, channel.NewLocalChannel) all already match this
// shape up to their return type, so wiring one in is a one-line wrapper:
// func(opts ...channel.Option) channel.Channel { return channel.NewTCPChannel(opts...) }
type ChannelFactory func(opts ...channel.Option) channel.Channel

// Initializer installs a pipeline (and any other per-channel wiring) on a
// freshly constructed channel before it is registered, so no inbound
// event can race ahead of handler installation.
type Initializer func(ch channel.Channel)

// Bootstrap is the client-side entry point: pick a loop from a group,
// construct a channel, install its pipeline, register, then connect.
type Bootstrap struct {
	group       *eventloop.Group
	factory     ChannelFactory
	options     []channel.Option
	initializer Initializer
}

// NewBootstrap constructs a Bootstrap bound to group; loops are taken via
// group.Next() round-robin, one per Connect call.
func NewBootstrap(group *eventloop.Group) *Bootstrap {
	return &Bootstrap{group: group}
}

// Channel sets the factory used to construct each outbound channel.
func (b *Bootstrap) Channel(factory ChannelFactory) *Bootstrap {
	b.factory = factory
	return b
}

// Options appends channel construction options (water-marks, auto-read,
// attributes via channel.WithAttr, ...), passed in order to the factory
// call that constructs each channel.
func (b *Bootstrap) Options(opts ...channel.Option) *Bootstrap {
	b.options = append(b.options, opts...)
	return b
}

// Handler sets the pipeline initializer run on each channel before it is
// registered.
func (b *Bootstrap) Handler(init Initializer) *Bootstrap {
	b.initializer = init
	return b
}

// Connect constructs a channel, installs its pipeline, registers it on
// the next loop from the group, then connects it to remote (optionally
// binding local first). The returned Promise settles once Connect
// itself completes; registration failure fails it without ever
// attempting to connect.
func (b *Bootstrap) Connect(remote, local channel.Addr) (channel.Channel, eventloop.Promise) {
	loop := b.group.Next()
	ch := b.factory(b.options...)
	if b.initializer != nil {
		b.initializer(ch)
	}
	final := loop.NewPromise()
	ch.Register(loop).OnComplete(func(p eventloop.Promise) {
		if _, err := p.Result(); err != nil {
			final.Fail(err)
			return
		}
		ch.Connect(remote, local).OnComplete(func(cp eventloop.Promise) {
			if v, err := cp.Result(); err != nil {
				final.Fail(err)
			} else {
				final.Succeed(v)
			}
		})
	})
	return ch, final
}
