package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromisifySettlesWithFnResult(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	onLoop := make(chan bool, 1)
	p := loop.Promisify(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	p.OnComplete(func(Promise) { onLoop <- loop.InEventLoop() })

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("promise did not settle")
	}
	value, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.True(t, <-onLoop, "continuation did not run on the loop goroutine")
}

func TestPromisifySettlesWithFnError(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	sentinel := errors.New("boom")
	p := loop.Promisify(context.Background(), func(ctx context.Context) (any, error) {
		return nil, sentinel
	})

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("promise did not settle")
	}
	_, err := p.Result()
	assert.ErrorIs(t, err, sentinel)
}

func TestPromisifyRecoversPanic(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	p := loop.Promisify(context.Background(), func(ctx context.Context) (any, error) {
		panic("kaboom")
	})

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("promise did not settle")
	}
	_, err := p.Result()
	var panicErr PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
}

func TestPromisifyWithTimeoutExceeded(t *testing.T) {
	loop, stop := runLoop(t)
	defer stop()

	p := loop.PromisifyWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("promise did not settle")
	}
	_, err := p.Result()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
