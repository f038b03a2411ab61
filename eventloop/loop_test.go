package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T) (*Loop, func()) {
	t.Helper()
	loop, err := New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	return loop, func() {
		cancel()
		<-done
	}
}

func TestLoopSubmitRunsOnLoopGoroutine(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	result := make(chan bool, 1)
	require.NoError(t, loop.Submit(func() {
		result <- loop.InEventLoop()
	}))

	select {
	case onLoop := <-result:
		assert.True(t, onLoop)
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestLoopScheduleFiresAfterDelay(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	fired := make(chan struct{})
	start := time.Now()
	_, err := loop.Schedule(20*time.Millisecond, func() { close(fired) })
	require.NoError(t, err)

	select {
	case <-fired:
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoopScheduleCancel(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	var fired atomic.Bool
	task, err := loop.Schedule(30*time.Millisecond, func() { fired.Store(true) })
	require.NoError(t, err)
	task.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestLoopRunRejectsReentrantCall(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	errCh := make(chan error, 1)
	require.NoError(t, loop.Submit(func() {
		errCh <- loop.Run(context.Background())
	}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrReentrantRun)
	case <-time.After(time.Second):
		t.Fatal("nested Run did not return")
	}
}

func TestLoopRunTwiceFails(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrLoopAlreadyRunning)
}

func TestLoopShutdownGracefullyRejectsOutstandingPromises(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	p := loop.NewPromise()

	shutdown := loop.ShutdownGracefully(0, time.Second)
	select {
	case <-shutdown.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not settle")
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("outstanding promise was not rejected on shutdown")
	}
	_, perr := p.Result()
	assert.ErrorIs(t, perr, ErrLoopTerminated)

	cancel()
	<-done
}

func TestLoopSubmitAfterTerminationFails(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	shutdown := loop.ShutdownGracefully(0, time.Second)
	<-shutdown.Done()
	cancel()
	<-done

	assert.ErrorIs(t, loop.Submit(func() {}), ErrLoopTerminated)
}

func TestLoopTrackForShutdownFiresOnce(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	var calls atomic.Int32
	loop.TrackForShutdown(func() { calls.Add(1) })

	shutdown := loop.ShutdownGracefully(0, time.Second)
	<-shutdown.Done()
	cancel()
	<-done

	assert.Equal(t, int32(1), calls.Load())
}
