//go:build windows

package eventloop

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/windows"
)

// windowsPoller implements poller with WSAPoll. Unlike epoll/kqueue it is
// not edge-triggered and re-polls the full registered set each call, which
// is adequate for the connection counts this framework targets on Windows
// (it is not the platform the "maximum performance" core is tuned for).
type windowsPoller struct {
	mu      sync.RWMutex
	entries map[int]fdEntry
	closed  atomic.Bool
}

type fdEntry struct {
	events   IOEvents
	callback IOCallback
}

var _ poller = (*windowsPoller)(nil)

func newPlatformPoller() poller {
	return &windowsPoller{entries: make(map[int]fdEntry)}
}

func (p *windowsPoller) Init() error { return nil }

func (p *windowsPoller) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *windowsPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	p.entries[fd] = fdEntry{events: events, callback: cb}
	return nil
}

func (p *windowsPoller) UnregisterFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.entries, fd)
	return nil
}

func (p *windowsPoller) ModifyFD(fd int, events IOEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	e.events = events
	p.entries[fd] = e
	return nil
}

func (p *windowsPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	p.mu.RLock()
	fds := make([]windows.WSAPollFd, 0, len(p.entries))
	order := make([]int, 0, len(p.entries))
	for fd, e := range p.entries {
		var want int16
		if e.events&EventRead != 0 {
			want |= windows.POLLRDNORM
		}
		if e.events&EventWrite != 0 {
			want |= windows.POLLWRNORM
		}
		fds = append(fds, windows.WSAPollFd{Fd: windows.Handle(fd), Events: want})
		order = append(order, fd)
	}
	p.mu.RUnlock()

	if len(fds) == 0 {
		if timeoutMs > 0 {
			time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
		}
		return 0, nil
	}

	n, err := windows.WSAPoll(fds, timeoutMs)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	dispatched := 0
	for i, pfd := range fds {
		if pfd.REvents == 0 {
			continue
		}
		p.mu.RLock()
		entry, ok := p.entries[order[i]]
		p.mu.RUnlock()
		if !ok || entry.callback == nil {
			continue
		}
		var ev IOEvents
		if pfd.REvents&windows.POLLRDNORM != 0 {
			ev |= EventRead
		}
		if pfd.REvents&windows.POLLWRNORM != 0 {
			ev |= EventWrite
		}
		if pfd.REvents&windows.POLLHUP != 0 {
			ev |= EventHangup
		}
		if pfd.REvents&windows.POLLERR != 0 {
			ev |= EventError
		}
		entry.callback(ev)
		dispatched++
	}
	return dispatched, nil
}
