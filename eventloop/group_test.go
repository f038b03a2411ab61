package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroupRejectsNonPositiveSize(t *testing.T) {
	_, err := NewGroup(0)
	assert.Error(t, err)
}

func TestGroupNextRoundRobins(t *testing.T) {
	g, err := NewGroup(3)
	require.NoError(t, err)
	defer g.ShutdownGracefully(0, time.Second)

	seen := map[*Loop]int{}
	for i := 0; i < 9; i++ {
		seen[g.Next()]++
	}
	assert.Len(t, seen, 3)
	for _, n := range seen {
		assert.Equal(t, 3, n)
	}
}

func TestGroupRunStopsOnContextCancel(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- g.Run(ctx) }()

	cancel()
	select {
	case err := <-runErr:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("group did not stop")
	}
}

func TestGroupShutdownGracefullySettlesEveryLoop(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = g.Run(ctx) }()

	done := make(chan struct{})
	go func() {
		g.ShutdownGracefully(0, time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("group shutdown did not settle")
	}
	for _, l := range g.Loops() {
		assert.Equal(t, StateTerminated, l.State())
	}
}
