package buf

import (
	"sync"
	"sync/atomic"
)

// Allocator constructs Buffers. Two strategies are provided: Unpooled (one
// allocation per buffer) and Pooled (thread-local size-classed arenas that
// avoid churn on hot read/write paths). Both satisfy this interface so a
// channel can be handed either without caring which it got.
type Allocator interface {
	// Buffer allocates a new Buffer with the given initial and max capacity.
	Buffer(initialCapacity, maxCapacity int) (Buffer, error)
}

// sizeClass buckets an allocation request the way the pooled allocator's
// arenas are organized: tiny/small/normal requests are served from a
// size-classed free list, huge requests fall through to the unpooled path.
type sizeClass int

const (
	classTiny sizeClass = iota // < 512 B
	classSmall                 // < 8 KiB
	classNormal                // < 16 MiB
	classHuge                   // >= 16 MiB, routed to unpooled fallback
)

const (
	tinyCeiling   = 512
	smallCeiling  = 8 * 1024
	normalCeiling = 16 * 1024 * 1024
)

func classify(n int) sizeClass {
	switch {
	case n < tinyCeiling:
		return classTiny
	case n < smallCeiling:
		return classSmall
	case n < normalCeiling:
		return classNormal
	default:
		return classHuge
	}
}

func classCapacity(c sizeClass) int {
	switch c {
	case classTiny:
		return tinyCeiling
	case classSmall:
		return smallCeiling
	case classNormal:
		return normalCeiling
	default:
		return 0
	}
}

// UnpooledAllocator performs one heap allocation per Buffer. Storage is
// simply dropped (left for the garbage collector) on release.
type UnpooledAllocator struct{}

var _ Allocator = UnpooledAllocator{}

func (UnpooledAllocator) Buffer(initialCapacity, maxCapacity int) (Buffer, error) {
	if initialCapacity < 0 || maxCapacity < initialCapacity {
		return nil, ErrIndexOutOfRange
	}
	return newRoot(initialCapacity, maxCapacity, nil), nil
}

// PooledAllocator classifies requests into tiny/small/normal/huge bands,
// each served by its own sync.Pool of backing arrays so hot paths (a
// channel reading one message per event-loop tick) avoid repeated
// allocation. Huge requests bypass the pools entirely and fall back to the
// unpooled path, since pooling multi-megabyte buffers wastes memory on
// arenas that are unlikely to be reused at that size.
type PooledAllocator struct {
	tiny, small, normal sync.Pool
	initOnce            sync.Once
}

var _ Allocator = (*PooledAllocator)(nil)

// NewPooledAllocator returns a ready-to-use PooledAllocator.
func NewPooledAllocator() *PooledAllocator {
	p := &PooledAllocator{}
	p.init()
	return p
}

func (p *PooledAllocator) init() {
	p.initOnce.Do(func() {
		p.tiny.New = func() any { b := make([]byte, tinyCeiling); return &b }
		p.small.New = func() any { b := make([]byte, smallCeiling); return &b }
		p.normal.New = func() any { b := make([]byte, normalCeiling); return &b }
	})
}

func (p *PooledAllocator) pool(c sizeClass) *sync.Pool {
	switch c {
	case classTiny:
		return &p.tiny
	case classSmall:
		return &p.small
	case classNormal:
		return &p.normal
	default:
		return nil
	}
}

func (p *PooledAllocator) Buffer(initialCapacity, maxCapacity int) (Buffer, error) {
	if initialCapacity < 0 || maxCapacity < initialCapacity {
		return nil, ErrIndexOutOfRange
	}
	p.init()

	class := classify(initialCapacity)
	if class == classHuge {
		// Huge requests are not pooled; fall back to a direct allocation.
		return UnpooledAllocator{}.Buffer(initialCapacity, maxCapacity)
	}

	pool := p.pool(class)
	arena := pool.Get().(*[]byte)
	arenaCap := classCapacity(class)
	if arenaCap < initialCapacity {
		arenaCap = initialCapacity
	}
	if arenaCap > len(*arena) {
		*arena = make([]byte, arenaCap)
	}

	rc := &refCount{}
	rc.n.Store(1)
	st := &storage{
		buf: (*arena)[:arenaCap],
		release: func(buf []byte) {
			*arena = buf
			pool.Put(arena)
		},
	}
	return &byteBuffer{
		rc:     rc,
		store:  st,
		off:    0,
		cap:    initialCapacity,
		maxCap: maxCapacity,
	}, nil
}

// BoundedAllocator wraps another Allocator with a hard ceiling on total
// outstanding bytes, the caller-visible "allocator exhaustion is a
// retryable error for the caller" failure mode: a request that would push
// outstanding usage past the budget fails with ErrAllocatorExhausted
// rather than growing the underlying pool unboundedly. The allocator
// itself never retries; that's left entirely to the caller.
type BoundedAllocator struct {
	inner          Allocator
	maxOutstanding int64
	outstanding    atomic.Int64
}

var _ Allocator = (*BoundedAllocator)(nil)

// NewBoundedAllocator budgets inner to at most maxOutstanding bytes live
// (requested, not yet released) at any one time.
func NewBoundedAllocator(inner Allocator, maxOutstanding int64) *BoundedAllocator {
	return &BoundedAllocator{inner: inner, maxOutstanding: maxOutstanding}
}

func (a *BoundedAllocator) Buffer(initialCapacity, maxCapacity int) (Buffer, error) {
	if initialCapacity < 0 || maxCapacity < initialCapacity {
		return nil, ErrIndexOutOfRange
	}
	want := int64(initialCapacity)
	for {
		cur := a.outstanding.Load()
		if cur+want > a.maxOutstanding {
			return nil, ErrAllocatorExhausted
		}
		if a.outstanding.CompareAndSwap(cur, cur+want) {
			break
		}
	}
	b, err := a.inner.Buffer(initialCapacity, maxCapacity)
	if err != nil {
		a.outstanding.Add(-want)
		return nil, err
	}
	return &boundedBuffer{Buffer: b, a: a, charged: want}, nil
}

// boundedBuffer returns its charge to the owning BoundedAllocator's budget
// exactly once, on the release that drops the wrapped buffer's refcount to
// zero.
type boundedBuffer struct {
	Buffer
	a       *BoundedAllocator
	charged int64
}

func (b *boundedBuffer) Retain() Buffer {
	b.Buffer.Retain()
	return b
}

func (b *boundedBuffer) Release() bool {
	freed := b.Buffer.Release()
	if freed {
		b.a.outstanding.Add(-b.charged)
	}
	return freed
}
