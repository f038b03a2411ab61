package eventloop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseSucceedSettlesOnce(t *testing.T) {
	p := newPromise()
	assert.True(t, p.Succeed(42))
	assert.False(t, p.Succeed(43))
	assert.False(t, p.Fail(errors.New("too late")))

	value, err := p.Result()
	assert.Equal(t, 42, value)
	assert.NoError(t, err)
	assert.Equal(t, Succeeded, p.State())
}

func TestPromiseFail(t *testing.T) {
	p := newPromise()
	sentinel := errors.New("boom")
	require.True(t, p.Fail(sentinel))

	_, err := p.Result()
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, Failed, p.State())
}

func TestPromiseCancel(t *testing.T) {
	p := newPromise()
	require.True(t, p.Cancel())
	_, err := p.Result()
	assert.ErrorIs(t, err, ErrPromiseCancelled)
	assert.Equal(t, Cancelled, p.State())
}

func TestPromiseOnCompleteOrderingAndLateRegistration(t *testing.T) {
	p := newPromise()
	var order []int
	p.OnComplete(func(Promise) { order = append(order, 1) })
	p.OnComplete(func(Promise) { order = append(order, 2) })

	p.Succeed(nil)
	assert.Equal(t, []int{1, 2}, order)

	// A continuation registered after settlement runs synchronously,
	// immediately, rather than being queued.
	called := false
	p.OnComplete(func(Promise) { called = true })
	assert.True(t, called)
}

func TestPromiseDoneClosedOnSettle(t *testing.T) {
	p := newPromise()
	select {
	case <-p.Done():
		t.Fatal("Done channel closed before settlement")
	default:
	}
	p.Succeed(nil)
	select {
	case <-p.Done():
	default:
		t.Fatal("Done channel not closed after settlement")
	}
}
