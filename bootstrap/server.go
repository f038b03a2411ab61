package bootstrap

import (
	"github.com/joeycumines/nettle/channel"
	"github.com/joeycumines/nettle/eventloop"
)

// ServerBootstrap is the listening-side entry point: an acceptor loop
// group owns the listening channel, and each accepted connection is
// handed to the next loop in a separate child group, after its pipeline
// is installed and its construction options/attributes applied —
// mirroring the acceptor-handler contract: channel-read(child) -> assign
// to child group -> apply child options/attributes -> insert child
// initializer -> register, force-close child on registration failure.
type ServerBootstrap struct {
	group            *eventloop.Group
	childGroup       *eventloop.Group
	childOptions     []channel.Option
	childInitializer Initializer

	server *channel.TCPServerChannel
}

// NewServerBootstrap binds the acceptor loop to group and accepted
// children to childGroup (which may be the same group; passing the same
// value degrades gracefully to a single-group deployment).
func NewServerBootstrap(group, childGroup *eventloop.Group) *ServerBootstrap {
	return &ServerBootstrap{group: group, childGroup: childGroup}
}

// ChildOptions appends construction options (water-marks, auto-read,
// attributes, ...) applied to every accepted child channel.
func (s *ServerBootstrap) ChildOptions(opts ...channel.Option) *ServerBootstrap {
	s.childOptions = append(s.childOptions, opts...)
	return s
}

// ChildHandler sets the pipeline initializer run on each accepted child
// before it is registered.
func (s *ServerBootstrap) ChildHandler(init Initializer) *ServerBootstrap {
	s.childInitializer = init
	return s
}

// Bind constructs the listening TCPServerChannel on the next loop from
// the acceptor group and starts listening on addr. The acceptor loop
// itself never carries payload data; every accepted connection is handed
// off to a loop from the child group.
func (s *ServerBootstrap) Bind(addr channel.Addr) (*channel.TCPServerChannel, error) {
	loop := s.group.Next()
	accept := func(child *channel.TCPChannel) *eventloop.Loop {
		if s.childInitializer != nil {
			s.childInitializer(child)
		}
		return s.childGroup.Next()
	}
	s.server = channel.NewTCPServerChannel(loop, accept, s.childOptions...)
	if err := s.server.Bind(addr); err != nil {
		return nil, err
	}
	return s.server, nil
}

// Close stops the listening channel.
func (s *ServerBootstrap) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}
