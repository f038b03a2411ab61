// Package eventloop implements the single-threaded cooperative scheduler
// that channels register to. Every mutation of a channel's state, its
// pipeline, and its outbound write buffer happens only on the goroutine
// running that channel's Loop; cross-loop and cross-goroutine communication
// happens exclusively through Submit/Schedule.
package eventloop

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// defaultPollTimeout bounds how long a single PollIO call blocks when no
// timer is pending, so the loop periodically re-checks its shutdown
// deadlines even with no I/O activity.
const defaultPollTimeout = 1 * time.Second

// Loop is a single-threaded event loop: one goroutine runs Run, and every
// Task submitted to it — along with every handler callback belonging to a
// channel registered on it — executes serially on that goroutine.
type Loop struct {
	id   string
	name string

	state *fastState

	external taskQueue // tasks submitted from other goroutines
	internal taskQueue // priority tasks from submitInternal called off the loop goroutine (Schedule's timer insertions)

	timers timerHeap

	poller    poller
	wakeRead  int
	wakeWrite int

	registry *registry

	goroutineID atomic.Uint64

	runOnce  sync.Once
	doneCh   chan struct{}
	termErr  error

	shutdownMu       sync.Mutex
	shutdownPromise  *promise
	quietDeadline    time.Time
	hardDeadline     time.Time
	lastActivity     atomic.Int64 // unix nanos, updated while shutting down

	shutdownHooksMu sync.Mutex
	shutdownHooks   map[uint64]func()
	nextHookID      uint64

	logger Logger

	metrics *Metrics
}

// New constructs a Loop ready to be Run. The returned Loop owns an OS-level
// wakeup primitive and an I/O poller from first use; both are released
// when the loop terminates.
func New(opts ...Option) (*Loop, error) {
	cfg := resolveOptions(opts)

	l := &Loop{
		id:            uuid.NewString(),
		name:          cfg.name,
		state:         newFastState(),
		registry:      newRegistry(),
		doneCh:        make(chan struct{}),
		shutdownHooks: make(map[uint64]func()),
		logger:        cfg.logger,
		metrics:       newMetrics(cfg.metricsEnabled),
	}

	readFD, writeFD, err := createWakeFD()
	if err != nil {
		return nil, err
	}
	l.wakeRead, l.wakeWrite = readFD, writeFD

	l.poller = newPlatformPoller()
	if err := l.poller.Init(); err != nil {
		closeWakeFD(readFD, writeFD)
		return nil, err
	}
	if l.wakeRead >= 0 {
		if err := l.poller.RegisterFD(l.wakeRead, EventRead, func(IOEvents) { drainWake(l.wakeRead) }); err != nil {
			_ = l.poller.Close()
			closeWakeFD(readFD, writeFD)
			return nil, err
		}
	}

	if err := l.metrics.Register(prometheus.WrapRegistererWith(
		prometheus.Labels{"loop": l.id}, prometheus.DefaultRegisterer,
	)); err != nil {
		l.logf(LevelWarn, "metrics registration failed: %v", err)
	}

	return l, nil
}

// ID returns the loop's unique identifier, assigned at construction.
func (l *Loop) ID() string { return l.id }

// Name returns the human-readable name assigned via WithName, or "" if none.
func (l *Loop) Name() string { return l.name }

// State returns the current LoopState.
func (l *Loop) State() LoopState { return l.state.Load() }

// InEventLoop reports whether the calling goroutine is this loop's own
// goroutine.
func (l *Loop) InEventLoop() bool {
	id := l.goroutineID.Load()
	return id != 0 && id == goroutineID()
}

// CanRegister reports whether a new channel may still register with this
// loop. Once graceful shutdown begins the framework never accepts new
// registrations, matching the "register fails in any state after
// shutting-down" rule.
func (l *Loop) CanRegister() bool {
	return l.state.Load() < StateShuttingDown
}

// Execute is an alias for Submit matching the framework's "execute(task)"
// vocabulary.
func (l *Loop) Execute(t Task) error { return l.Submit(t) }

// Submit enqueues a task on the external queue. Safe to call from any
// goroutine. Returns ErrLoopTerminated once the loop has fully shut down;
// during graceful shutdown submissions are still accepted so in-flight
// work can finish. A submission during shutdown does not extend the quiet
// period, which is measured from the ShutdownGracefully call.
func (l *Loop) Submit(t Task) error {
	if t == nil {
		return nil
	}
	state := l.state.Load()
	if state == StateTerminated {
		return ErrLoopTerminated
	}
	l.external.push(t)
	l.noteActivity(state)
	l.wake()
	return nil
}

// submitInternal enqueues a priority task, drained before the external
// queue on each tick; Schedule uses it to insert timers. Called on the loop
// goroutine it runs t immediately instead of queueing it.
func (l *Loop) submitInternal(t Task) error {
	if t == nil {
		return nil
	}
	if l.InEventLoop() {
		runProtected(l.logf, "internal", t)
		return nil
	}
	state := l.state.Load()
	if state == StateTerminated {
		return ErrLoopTerminated
	}
	l.internal.push(t)
	l.noteActivity(state)
	l.wake()
	return nil
}

func (l *Loop) noteActivity(state LoopState) {
	if state >= StateShuttingDown {
		l.lastActivity.Store(time.Now().UnixNano())
	}
}

// Schedule runs fn after delay elapses, measured from the loop's own clock.
// The returned ScheduledTask can cancel the timer before it fires.
func (l *Loop) Schedule(delay time.Duration, fn func()) (ScheduledTask, error) {
	if l.state.Load() == StateTerminated {
		return nil, ErrLoopTerminated
	}
	entry := &timerEntry{when: time.Now().Add(delay), task: fn}
	if err := l.submitInternal(func() { heap.Push(&l.timers, entry) }); err != nil {
		return nil, err
	}
	return entry, nil
}

// RegisterFD exposes the loop's I/O poller to channel implementations.
func (l *Loop) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	return l.poller.RegisterFD(fd, events, cb)
}

// UnregisterFD removes fd from the poller.
func (l *Loop) UnregisterFD(fd int) error { return l.poller.UnregisterFD(fd) }

// ModifyFD updates the events a registered fd is polled for.
func (l *Loop) ModifyFD(fd int, events IOEvents) error { return l.poller.ModifyFD(fd, events) }

// TrackForShutdown registers closer to be invoked once, from the loop
// goroutine, when the loop begins its drain phase. Channels call this upon
// successful registration so graceful shutdown forcibly closes every
// channel still attached to the loop. The returned function unregisters
// the hook (called by the channel on its own close).
func (l *Loop) TrackForShutdown(closer func()) (unregister func()) {
	l.shutdownHooksMu.Lock()
	id := l.nextHookID
	l.nextHookID++
	l.shutdownHooks[id] = closer
	l.shutdownHooksMu.Unlock()

	return func() {
		l.shutdownHooksMu.Lock()
		delete(l.shutdownHooks, id)
		l.shutdownHooksMu.Unlock()
	}
}

// NewPromise creates a Promise tracked by this loop's registry, used by
// framework operations (bind/connect/write/flush/close) to report
// completion.
func (l *Loop) NewPromise() Promise { return l.registry.NewPromise() }

func (l *Loop) wake() {
	if l.wakeWrite >= 0 {
		_ = writeWake(l.wakeWrite)
	}
}

// Run runs the loop until ctx is cancelled or ShutdownGracefully completes.
// It blocks the calling goroutine; run it with `go loop.Run(ctx)` to use the
// loop from elsewhere.
func (l *Loop) Run(ctx context.Context) error {
	if l.InEventLoop() {
		return ErrReentrantRun
	}
	if !l.state.CAS(StateNotStarted, StateStarted) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	l.goroutineID.Store(goroutineID())
	defer l.goroutineID.Store(0)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.beginShutdown(0, 0)
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	for {
		if l.state.Load() == StateTerminated {
			break
		}
		l.tick()
		if l.state.Load() == StateShuttingDown {
			l.maybeFinishShutdown()
		}
	}

	l.runOnce.Do(func() { close(l.doneCh) })
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return l.termErr
}

func (l *Loop) tick() {
	l.runTimers()
	l.drain(&l.internal, "internal")
	l.drain(&l.external, "external")
	l.poll()
	l.metrics.Tick()
	l.metrics.setPending(l.external.len())
	l.metrics.setState(l.state.Load())
	l.registry.Scavenge(32)
}

func (l *Loop) drain(q *taskQueue, category string) {
	for _, t := range q.drain() {
		start := time.Now()
		runProtected(l.logf, category, t)
		l.metrics.taskRun(category)
		l.metrics.observeTaskDuration(time.Since(start))
	}
}

func (l *Loop) runTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		e := heap.Pop(&l.timers).(*timerEntry)
		if e.cancelled {
			continue
		}
		runProtected(l.logf, "timer", e.task)
		l.metrics.timerFired()
	}
}

// poll blocks for I/O readiness until the next timer is due, a wake signal
// arrives, or defaultPollTimeout elapses (whichever is soonest), so the
// shutdown deadlines in maybeFinishShutdown are re-checked even when idle.
func (l *Loop) poll() {
	timeout := defaultPollTimeout
	if len(l.timers) > 0 {
		if d := time.Until(l.timers[0].when); d < timeout {
			timeout = d
		}
	}
	if l.state.Load() == StateShuttingDown {
		if d := time.Until(l.quietDeadline); d > 0 && d < timeout {
			timeout = d
		}
	}
	if timeout < 0 {
		timeout = 0
	}

	n, err := l.poller.PollIO(int(timeout.Milliseconds()))
	if err != nil {
		l.logf(LevelError, "poll error: %v", err)
		l.beginShutdown(0, 0)
		return
	}
	_ = n
}

// beginShutdown transitions the loop into StateShuttingDown and records the
// quiet/hard deadlines, producing the associated shutdown Promise if one
// does not already exist.
func (l *Loop) beginShutdown(quiet, timeout time.Duration) *promise {
	l.shutdownMu.Lock()
	defer l.shutdownMu.Unlock()

	if l.shutdownPromise != nil {
		return l.shutdownPromise
	}

	now := time.Now()
	l.quietDeadline = now.Add(quiet)
	l.hardDeadline = now.Add(timeout)
	l.lastActivity.Store(now.UnixNano())
	l.shutdownPromise = newPromise()

	for {
		cur := l.state.Load()
		if cur == StateTerminated || cur == StateShutdown {
			l.shutdownPromise.Succeed(nil)
			return l.shutdownPromise
		}
		if cur == StateShuttingDown {
			break
		}
		if l.state.CAS(cur, StateShuttingDown) {
			if cur == StateNotStarted {
				// Never started: finish the drain synchronously, there is
				// no loop goroutine to do it.
				l.finishShutdown()
			}
			break
		}
	}
	l.wake()
	return l.shutdownPromise
}

// ShutdownGracefully requests an orderly shutdown: new channel
// registrations are refused immediately, and once quiet has elapsed since
// this call and the task queues and timer heap are empty, the loop drains
// its queues, force closes every channel still registered, rejects all
// outstanding promises, and terminates. Submissions made during the quiet
// period do not restart it. It always terminates by timeout from this call. The
// returned Promise settles once the loop reaches StateTerminated.
func (l *Loop) ShutdownGracefully(quiet, timeout time.Duration) Promise {
	return l.beginShutdown(quiet, timeout)
}

// maybeFinishShutdown is called once per tick while StateShuttingDown, from
// the loop goroutine. It implements the three shutdown phases: quiet-period
// waiting, task drain, and terminate.
func (l *Loop) maybeFinishShutdown() {
	now := time.Now()

	idle := l.external.len() == 0 && l.internal.len() == 0 && len(l.timers) == 0
	quietHasElapsed := !now.Before(l.quietDeadline)
	pastHardDeadline := !l.hardDeadline.IsZero() && !now.Before(l.hardDeadline)

	if (idle && quietHasElapsed) || pastHardDeadline {
		l.finishShutdown()
	}
}

// finishShutdown performs the drain phase and transitions NotStarted/
// ShuttingDown all the way to Terminated. Safe to call from the loop
// goroutine (normal path) or synchronously from beginShutdown when the
// loop was never started.
func (l *Loop) finishShutdown() {
	l.state.Store(StateShutdown)

	// Final drain: anything queued up to this instant still runs.
	l.drain(&l.internal, "internal")
	l.drain(&l.external, "external")
	for len(l.timers) > 0 {
		e := heap.Pop(&l.timers).(*timerEntry)
		if !e.cancelled {
			runProtected(l.logf, "timer", e.task)
		}
	}

	l.shutdownHooksMu.Lock()
	hooks := make([]func(), 0, len(l.shutdownHooks))
	for _, h := range l.shutdownHooks {
		hooks = append(hooks, h)
	}
	l.shutdownHooksMu.Unlock()
	for _, h := range hooks {
		runProtected(l.logf, "shutdown-hook", h)
	}

	l.registry.RejectAll(ErrLoopTerminated)

	if l.wakeRead >= 0 {
		_ = l.poller.UnregisterFD(l.wakeRead)
	}
	_ = l.poller.Close()
	closeWakeFD(l.wakeRead, l.wakeWrite)

	l.state.Store(StateTerminated)

	l.shutdownMu.Lock()
	if l.shutdownPromise != nil {
		l.shutdownPromise.Succeed(nil)
	}
	l.shutdownMu.Unlock()
}

// Close is the non-graceful immediate shutdown path: it behaves like
// ShutdownGracefully(0, 0).
func (l *Loop) Close() error {
	p := l.beginShutdown(0, 0)
	<-p.Done()
	return nil
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
