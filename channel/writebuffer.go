package channel

import (
	"container/list"

	"github.com/joeycumines/nettle/eventloop"
)

// writeEntry is one queued outbound message: the message itself, its
// estimated size in bytes, and the promise that completes when it is
// fully written (or fails on close/error).
type writeEntry struct {
	msg     any
	size    int
	promise eventloop.Promise
	written int // bytes of msg already handed to the transport, for partial writes of []byte
}

// WriteBuffer is the channel's two-stage outbound queue: write() appends
// to unflushed, flush() moves unflushed onto the end of flushed. Only the
// flushed list is ever drained to the transport. Both lists are mutated
// only on the owning loop.
type WriteBuffer struct {
	unflushed *list.List
	flushed   *list.List

	pending int // total estimated bytes across both lists

	highWaterMark int
	lowWaterMark  int
	writable      bool

	estimator MessageSizeEstimator
}

// NewWriteBuffer constructs a WriteBuffer with the given water-marks.
// high must be >= low; writability starts true.
func NewWriteBuffer(low, high int, estimator MessageSizeEstimator) *WriteBuffer {
	if estimator == nil {
		estimator = ByteSizeEstimator{}
	}
	return &WriteBuffer{
		unflushed:     list.New(),
		flushed:       list.New(),
		lowWaterMark:  low,
		highWaterMark: high,
		writable:      true,
		estimator:     estimator,
	}
}

// Write enqueues msg to the unflushed list together with p, the promise
// that settles once the message is fully written or the channel closes.
func (w *WriteBuffer) Write(msg any, p eventloop.Promise) {
	size := w.estimator.Size(msg)
	w.unflushed.PushBack(&writeEntry{msg: msg, size: size, promise: p})
	w.addPending(size)
}

// Flush moves every unflushed entry onto the end of the flushed list, in
// order, so the next drain picks them up.
func (w *WriteBuffer) Flush() {
	for e := w.unflushed.Front(); e != nil; {
		next := e.Next()
		w.unflushed.Remove(e)
		w.flushed.PushBack(e.Value)
		e = next
	}
}

// Front returns the first flushed, not-yet-drained entry, or nil.
func (w *WriteBuffer) Front() *list.Element { return w.flushed.Front() }

// FrontMessage returns the message and already-written-byte count of the
// front flushed entry. ok is false if the flushed list is empty.
func (w *WriteBuffer) FrontMessage() (msg any, written int, ok bool) {
	e := w.flushed.Front()
	if e == nil {
		return nil, 0, false
	}
	entry := e.Value.(*writeEntry)
	return entry.msg, entry.written, true
}

// AdvanceFront records additional bytes of the front entry's message as
// having been handed to the transport, for transports (stream sockets)
// that can write a []byte message in more than one partial write.
func (w *WriteBuffer) AdvanceFront(n int) {
	e := w.flushed.Front()
	if e == nil {
		return
	}
	e.Value.(*writeEntry).written += n
}

// RemoveFront removes and succeeds the front flushed entry after a full
// write, decrementing the pending-bytes counter by its estimated size.
func (w *WriteBuffer) RemoveFront() {
	e := w.flushed.Front()
	if e == nil {
		return
	}
	entry := e.Value.(*writeEntry)
	w.flushed.Remove(e)
	w.subPending(entry.size)
	if entry.promise != nil {
		entry.promise.Succeed(nil)
	}
}

// IsEmpty reports whether both lists are empty.
func (w *WriteBuffer) IsEmpty() bool { return w.unflushed.Len() == 0 && w.flushed.Len() == 0 }

// Pending returns the total estimated outstanding bytes across both lists.
func (w *WriteBuffer) Pending() int { return w.pending }

// IsWritable reports whether pending bytes sits below the high water-mark
// (with hysteresis at the low water-mark once crossed).
func (w *WriteBuffer) IsWritable() bool { return w.writable }

func (w *WriteBuffer) addPending(n int) {
	w.pending += n
	if w.writable && w.pending >= w.highWaterMark {
		w.writable = false
	}
}

func (w *WriteBuffer) subPending(n int) {
	w.pending -= n
	if w.pending < 0 {
		w.pending = 0
	}
	if !w.writable && w.pending <= w.lowWaterMark {
		w.writable = true
	}
}

// FailAll fails every entry in both lists with cause (used on close),
// zeroing the pending counter without flipping writability through the
// normal hysteresis path since the channel is going away regardless.
func (w *WriteBuffer) FailAll(cause error) {
	for _, l := range [2]*list.List{w.unflushed, w.flushed} {
		for e := l.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*writeEntry)
			if entry.promise != nil {
				entry.promise.Fail(cause)
			}
		}
		l.Init()
	}
	w.pending = 0
	w.writable = true
}
