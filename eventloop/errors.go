package eventloop

import "errors"

// Standard errors returned by Loop and Group operations.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that
	// has already started.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")
	// ErrLoopTerminated is returned when an operation is attempted against
	// a loop that has fully shut down.
	ErrLoopTerminated = errors.New("eventloop: loop has terminated")
	// ErrLoopShuttingDown is returned by Register once graceful shutdown has
	// begun; the framework never accepts new channel registrations past
	// that point.
	ErrLoopShuttingDown = errors.New("eventloop: loop is shutting down")
	// ErrReentrantRun is returned when Run is called from within the loop's
	// own goroutine.
	ErrReentrantRun = errors.New("eventloop: cannot call Run from within the loop goroutine")
	// ErrNotOnEventLoop is returned by operations that require the caller
	// to already be executing on the owning loop's goroutine.
	ErrNotOnEventLoop = errors.New("eventloop: operation must run on the owning event loop")
	// ErrGoexit settles a Promisify promise when its function exits via
	// runtime.Goexit rather than returning or panicking.
	ErrGoexit = errors.New("eventloop: promisified function exited via runtime.Goexit")
)
