package eventloop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Group is a fixed-size set of Loops that channels round-robin across at
// registration time. A Group amortizes the cost of many channels over a
// small number of OS threads: each Loop pins itself to one goroutine, and
// a server with N cores typically runs an N-sized Group.
type Group struct {
	loops []*Loop
	next  atomic.Uint64
}

// NewGroup constructs size Loops, applying the same options to each.
// size must be at least 1.
func NewGroup(size int, opts ...Option) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("eventloop: group size must be at least 1, got %d", size)
	}
	g := &Group{loops: make([]*Loop, 0, size)}
	for i := 0; i < size; i++ {
		l, err := New(opts...)
		if err != nil {
			g.closePartial()
			return nil, fmt.Errorf("eventloop: constructing loop %d/%d: %w", i+1, size, err)
		}
		g.loops = append(g.loops, l)
	}
	return g, nil
}

func (g *Group) closePartial() {
	for _, l := range g.loops {
		_ = l.Close()
	}
}

// Len returns the number of loops in the group.
func (g *Group) Len() int { return len(g.loops) }

// Next returns the next Loop in round-robin order. Channels call this (via
// a ServerBootstrap's child group) to pick the loop they register with.
func (g *Group) Next() *Loop {
	i := g.next.Add(1) - 1
	return g.loops[i%uint64(len(g.loops))]
}

// Loops returns every Loop in the group, in construction order.
func (g *Group) Loops() []*Loop {
	out := make([]*Loop, len(g.loops))
	copy(out, g.loops)
	return out
}

// Run starts every loop in the group concurrently and blocks until ctx is
// cancelled and every loop has finished its own shutdown sequence, or one
// loop's Run returns a non-shutdown error, in which case the rest are
// asked to shut down immediately. It uses errgroup so the first
// unexpected error cancels the shared context for the others.
func (g *Group) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, l := range g.loops {
		l := l
		eg.Go(func() error { return l.Run(egCtx) })
	}
	return eg.Wait()
}

// ShutdownGracefully requests graceful shutdown on every loop in the group
// and returns once every loop's shutdown Promise has settled.
func (g *Group) ShutdownGracefully(quiet, timeout time.Duration) {
	promises := make([]Promise, len(g.loops))
	for i, l := range g.loops {
		promises[i] = l.ShutdownGracefully(quiet, timeout)
	}
	for _, p := range promises {
		<-p.Done()
	}
}
