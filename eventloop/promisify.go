package eventloop

import (
	"context"
	"fmt"
	"time"
)

// PanicError wraps a panic value recovered from a Promisify goroutine.
type PanicError struct {
	// Value is the recovered panic value (may be any type, including error).
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: promisified function panicked: %v", e.Value)
}

// Promisify runs fn on a new goroutine and settles the returned Promise
// with its result via Submit, so the completion always lands back on the
// loop goroutine like every other asynchronous operation. ctx is passed
// through to fn; if the loop terminates before fn returns, ctx is
// cancelled via a TrackForShutdown hook (fired during the loop's final
// drain) so a well-behaved fn can unwind promptly - fn is never forcibly
// killed, Go has no such mechanism. A panic inside fn settles the promise with a PanicError
// rather than crashing the goroutine, and a runtime.Goexit call settles
// it with ErrGoexit.
func (l *Loop) Promisify(ctx context.Context, fn func(ctx context.Context) (any, error)) Promise {
	p := l.NewPromise()
	ctx, cancel := context.WithCancel(ctx)
	unregister := l.TrackForShutdown(cancel)

	settle := func(value any, err error) {
		apply := func() {
			if err != nil {
				p.Fail(err)
			} else {
				p.Succeed(value)
			}
		}
		if subErr := l.Submit(apply); subErr != nil {
			apply()
		}
	}

	go func() {
		defer unregister()
		defer cancel()
		completed := false
		defer func() {
			if r := recover(); r != nil {
				settle(nil, PanicError{Value: r})
			} else if !completed {
				settle(nil, ErrGoexit)
			}
		}()

		value, err := fn(ctx)
		completed = true
		settle(value, err)
	}()

	return p
}

// PromisifyWithTimeout is Promisify with ctx bounded by timeout: once
// timeout elapses, fn's ctx is cancelled with context.DeadlineExceeded.
// The promise still settles only when fn returns, with fn's own result.
func (l *Loop) PromisifyWithTimeout(parent context.Context, timeout time.Duration, fn func(ctx context.Context) (any, error)) Promise {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return l.Promisify(ctx, func(ctx context.Context) (any, error) {
		defer cancel()
		return fn(ctx)
	})
}
