package buf

import (
	"fmt"
	"sync/atomic"
)

// Buffer is a growable, sliceable, reference-counted byte window. It is the
// uniform payload representation passed between pipeline handlers.
//
// Invariants: 0 <= ReaderIndex() <= WriterIndex() <= Capacity() <= MaxCapacity().
// A Buffer is created with a reference count of 1. Retain/Release adjust the
// count atomically; once the count reaches zero the buffer is released back
// to its allocator (or dropped, for unpooled storage) and every subsequent
// access returns ErrReferenceCountViolation.
type Buffer interface {
	// ReaderIndex returns the current read cursor.
	ReaderIndex() int
	// WriterIndex returns the current write cursor.
	WriterIndex() int
	// SetReaderIndex repositions the read cursor.
	SetReaderIndex(idx int) error
	// SetWriterIndex repositions the write cursor.
	SetWriterIndex(idx int) error
	// Capacity returns the buffer's current backing capacity.
	Capacity() int
	// MaxCapacity returns the upper bound capacity cannot grow past.
	MaxCapacity() int
	// ReadableBytes returns WriterIndex() - ReaderIndex().
	ReadableBytes() int
	// WritableBytes returns Capacity() - WriterIndex().
	WritableBytes() int

	// Read copies up to len(p) readable bytes into p, advancing ReaderIndex.
	// Returns the number of bytes copied. Reading at ReaderIndex == WriterIndex
	// yields zero bytes without moving indices (never an error).
	Read(p []byte) (int, error)
	// Write appends p, growing the buffer (up to MaxCapacity) as needed, and
	// advances WriterIndex. Returns ErrMaxCapacityExceeded if p does not fit.
	Write(p []byte) (int, error)
	// ReadByte reads and consumes a single byte.
	ReadByte() (byte, error)
	// WriteByte appends a single byte.
	WriteByte(b byte) error

	// Bytes returns the readable window [ReaderIndex, WriterIndex) without
	// copying. The slice is only valid until the buffer is mutated or released.
	Bytes() []byte

	// Slice returns a new Buffer sharing storage and reference count with the
	// receiver, presenting only the window [offset, offset+length). Slicing
	// does not retain; the caller owns the returned slice's share of the
	// count exactly as much as the parent's, so releasing a slice releases
	// the shared count.
	Slice(offset, length int) (Buffer, error)
	// Duplicate returns a new Buffer with independent reader/writer indices
	// but shared storage and reference count.
	Duplicate() Buffer

	// RefCount returns the current shared reference count.
	RefCount() int32
	// Retain increments the reference count and returns the receiver.
	Retain() Buffer
	// Release decrements the reference count, releasing underlying storage
	// to its allocator when it reaches zero. Returns true if this call
	// brought the count to zero.
	Release() bool
}

// storage is the shared backing array for a buffer and its slices/duplicates.
// It is owned by exactly one allocator, which is responsible for reclaiming
// it (pool Put, or simply dropping it for unpooled storage) once the last
// reference is released.
type storage struct {
	buf     []byte
	release func([]byte) // invoked with the final backing slice on release; may be nil
}

// refCount is the atomic counter shared by a buffer and every slice/duplicate
// derived from it.
type refCount struct {
	n atomic.Int32
}

type byteBuffer struct {
	rc     *refCount
	store  *storage
	off    int // base offset of this view into store.buf
	cap    int // capacity of this view (store.buf may be larger if shared)
	maxCap int
	r, w   int
}

var _ Buffer = (*byteBuffer)(nil)

// newRoot constructs a fresh root buffer (refcount == 1) over freshly
// allocated storage.
func newRoot(initial, max int, release func([]byte)) *byteBuffer {
	rc := &refCount{}
	rc.n.Store(1)
	return &byteBuffer{
		rc:     rc,
		store:  &storage{buf: make([]byte, initial), release: release},
		off:    0,
		cap:    initial,
		maxCap: max,
	}
}

func (b *byteBuffer) checkAlive() error {
	if b.rc.n.Load() <= 0 {
		return ErrReferenceCountViolation
	}
	return nil
}

func (b *byteBuffer) ReaderIndex() int { return b.r }
func (b *byteBuffer) WriterIndex() int { return b.w }

func (b *byteBuffer) SetReaderIndex(idx int) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if idx < 0 || idx > b.w {
		return ErrIndexOutOfRange
	}
	b.r = idx
	return nil
}

func (b *byteBuffer) SetWriterIndex(idx int) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if idx < b.r || idx > b.cap {
		return ErrIndexOutOfRange
	}
	b.w = idx
	return nil
}

func (b *byteBuffer) Capacity() int    { return b.cap }
func (b *byteBuffer) MaxCapacity() int { return b.maxCap }

func (b *byteBuffer) ReadableBytes() int { return b.w - b.r }
func (b *byteBuffer) WritableBytes() int { return b.cap - b.w }

func (b *byteBuffer) Read(p []byte) (int, error) {
	if err := b.checkAlive(); err != nil {
		return 0, err
	}
	n := copy(p, b.store.buf[b.off+b.r:b.off+b.w])
	b.r += n
	return n, nil
}

func (b *byteBuffer) ReadByte() (byte, error) {
	if err := b.checkAlive(); err != nil {
		return 0, err
	}
	if b.r >= b.w {
		return 0, ErrIndexOutOfRange
	}
	v := b.store.buf[b.off+b.r]
	b.r++
	return v, nil
}

func (b *byteBuffer) WriteByte(v byte) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	return b.writeBytes([]byte{v})
}

func (b *byteBuffer) Write(p []byte) (int, error) {
	if err := b.checkAlive(); err != nil {
		return 0, err
	}
	if err := b.writeBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *byteBuffer) writeBytes(p []byte) error {
	need := b.w + len(p)
	if need > b.cap {
		if need > b.maxCap {
			return ErrMaxCapacityExceeded
		}
		if err := b.growTo(need); err != nil {
			return err
		}
	}
	copy(b.store.buf[b.off+b.w:b.off+b.w+len(p)], p)
	b.w += len(p)
	return nil
}

// growTo grows the view's capacity to at least need, doubling like a typical
// Go slice grower but capped at maxCap. Growth re-slices the backing storage
// in place when there is room (the view owns the tail of store.buf), and
// reallocates storage.buf otherwise.
func (b *byteBuffer) growTo(need int) error {
	newCap := b.cap
	if newCap == 0 {
		newCap = 64
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > b.maxCap {
		newCap = b.maxCap
	}
	if b.off+newCap <= len(b.store.buf) {
		b.cap = newCap
		return nil
	}
	nb := make([]byte, b.off+newCap)
	copy(nb, b.store.buf)
	b.store.buf = nb
	b.cap = newCap
	return nil
}

func (b *byteBuffer) Bytes() []byte {
	if err := b.checkAlive(); err != nil {
		return nil
	}
	return b.store.buf[b.off+b.r : b.off+b.w]
}

func (b *byteBuffer) Slice(offset, length int) (Buffer, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > b.cap {
		return nil, ErrIndexOutOfRange
	}
	return &byteBuffer{
		rc:     b.rc,
		store:  b.store,
		off:    b.off + offset,
		cap:    length,
		maxCap: length,
		r:      0,
		w:      length,
	}, nil
}

func (b *byteBuffer) Duplicate() Buffer {
	return &byteBuffer{
		rc:     b.rc,
		store:  b.store,
		off:    b.off,
		cap:    b.cap,
		maxCap: b.maxCap,
		r:      b.r,
		w:      b.w,
	}
}

func (b *byteBuffer) RefCount() int32 { return b.rc.n.Load() }

func (b *byteBuffer) Retain() Buffer {
	n := b.rc.n.Add(1)
	if n <= 1 {
		panic(fmt.Errorf("buf: %w: retain on released buffer", ErrReferenceCountViolation))
	}
	return b
}

func (b *byteBuffer) Release() bool {
	n := b.rc.n.Add(-1)
	if n < 0 {
		panic(fmt.Errorf("buf: %w: release called more times than retain", ErrReferenceCountViolation))
	}
	if n == 0 {
		if b.store.release != nil {
			b.store.release(b.store.buf)
		}
		return true
	}
	return false
}
