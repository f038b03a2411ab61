package eventloop

import "sync/atomic"

// LoopState is the lifecycle state of a [Loop], matching the state machine
// named by the framework: not-started -> started -> shutting-down ->
// shutdown -> terminated. Transitions are monotone; there is no path back
// to an earlier state.
type LoopState uint32

const (
	// StateNotStarted is the state of a freshly constructed Loop that has
	// not yet had Run called on it.
	StateNotStarted LoopState = iota
	// StateStarted indicates the loop is actively ticking: running tasks,
	// firing timers, and polling for I/O.
	StateStarted
	// StateShuttingDown indicates ShutdownGracefully has been invoked and
	// the loop is waiting out its quiet period / draining its queues.
	StateShuttingDown
	// StateShutdown indicates the drain phase completed and the loop is
	// closing its file descriptors and rejecting outstanding promises.
	StateShutdown
	// StateTerminated is the terminal state; Run has returned and the loop
	// can never accept new work again.
	StateTerminated
)

func (s LoopState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarted:
		return "started"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutdown:
		return "shutdown"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// cacheLineSize is padded to 128 bytes rather than the x86-64-only 64,
// since that's also the line size Apple Silicon and other ARM64 parts
// use; padding to the larger figure avoids false sharing on either.
const cacheLineSize = 128

// fastState is a lock-free CAS-based state holder, cache-line padded to
// avoid false sharing between the loop goroutine and callers on other
// goroutines racing to observe or transition state.
type fastState struct { // betteralign:ignore
	_ [cacheLineSize]byte
	v atomic.Uint32
	_ [cacheLineSize - 4]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(StateNotStarted))
	return s
}

func (s *fastState) Load() LoopState { return LoopState(s.v.Load()) }

func (s *fastState) Store(state LoopState) { s.v.Store(uint32(state)) }

func (s *fastState) CAS(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// atLeast reports whether the current state is state or later in the
// monotone sequence defined by LoopState's numeric ordering.
func (s *fastState) atLeast(state LoopState) bool {
	return s.Load() >= state
}
