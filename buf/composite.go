package buf

import "fmt"

// Composite presents an ordered sequence of component Buffers as a single
// Buffer. Each component contributes its own reference count: adding a
// component retains it, and releasing the composite releases every
// component once.
type Composite struct {
	components []Buffer
	// cumulative[i] is the byte offset at which components[i] begins in the
	// composite's address space; cumulative[len(components)] is the total.
	cumulative []int
	maxCap     int
	r, w       int
	rc         *refCount
}

var _ Buffer = (*Composite)(nil)

// NewComposite builds a Composite over parts, retaining each one. The
// writer index starts at the sum of the parts' readable bytes so a freshly
// composed buffer is immediately readable end to end, matching how a
// decoder assembles fragments already containing data.
func NewComposite(maxCapacity int, parts ...Buffer) *Composite {
	c := &Composite{maxCap: maxCapacity}
	rc := &refCount{}
	rc.n.Store(1)
	c.rc = rc
	c.cumulative = append(c.cumulative, 0)
	for _, p := range parts {
		p.Retain()
		c.components = append(c.components, p)
		total := c.cumulative[len(c.cumulative)-1] + p.ReadableBytes()
		c.cumulative = append(c.cumulative, total)
	}
	c.w = c.cumulative[len(c.cumulative)-1]
	return c
}

func (c *Composite) checkAlive() error {
	if c.rc.n.Load() <= 0 {
		return ErrReferenceCountViolation
	}
	return nil
}

func (c *Composite) Capacity() int    { return c.cumulative[len(c.cumulative)-1] }
func (c *Composite) MaxCapacity() int { return c.maxCap }
func (c *Composite) ReaderIndex() int { return c.r }
func (c *Composite) WriterIndex() int { return c.w }

func (c *Composite) SetReaderIndex(idx int) error {
	if idx < 0 || idx > c.w {
		return ErrIndexOutOfRange
	}
	c.r = idx
	return nil
}

func (c *Composite) SetWriterIndex(idx int) error {
	if idx < c.r || idx > c.Capacity() {
		return ErrIndexOutOfRange
	}
	c.w = idx
	return nil
}

func (c *Composite) ReadableBytes() int { return c.w - c.r }
func (c *Composite) WritableBytes() int { return c.Capacity() - c.w }

// locate finds the component index containing absolute offset pos, and the
// offset within that component.
func (c *Composite) locate(pos int) (idx, inner int) {
	lo, hi := 0, len(c.components)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if pos < c.cumulative[mid] {
			hi = mid - 1
		} else if pos >= c.cumulative[mid+1] {
			lo = mid + 1
		} else {
			return mid, pos - c.cumulative[mid]
		}
	}
	return len(c.components), 0
}

func (c *Composite) Read(p []byte) (int, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	total := 0
	for total < len(p) && c.r < c.w {
		idx, inner := c.locate(c.r)
		if idx >= len(c.components) {
			break
		}
		comp := c.components[idx]
		avail := c.cumulative[idx+1] - c.cumulative[idx] - inner
		want := len(p) - total
		if want > avail {
			want = avail
		}
		_ = comp.SetReaderIndex(inner)
		n, err := comp.Read(p[total : total+want])
		if err != nil {
			return total, err
		}
		total += n
		c.r += n
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (c *Composite) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := c.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrIndexOutOfRange
	}
	return buf[0], nil
}

// Write is unsupported directly on a Composite: components are added via
// [Composite.AddComponent]. Attempting to write returns
// ErrMaxCapacityExceeded, mirroring that a composed buffer's capacity is
// fixed by its components rather than grown in place.
func (c *Composite) Write(p []byte) (int, error) {
	return 0, ErrMaxCapacityExceeded
}

func (c *Composite) WriteByte(b byte) error {
	_, err := c.Write([]byte{b})
	return err
}

// AddComponent appends part to the composite, retaining it, and extends the
// writer index by its current readable span.
func (c *Composite) AddComponent(part Buffer) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	part.Retain()
	c.components = append(c.components, part)
	total := c.cumulative[len(c.cumulative)-1] + part.ReadableBytes()
	c.cumulative = append(c.cumulative, total)
	c.w = total
	return nil
}

func (c *Composite) Bytes() []byte {
	if err := c.checkAlive(); err != nil {
		return nil
	}
	out := make([]byte, 0, c.ReadableBytes())
	pos := c.r
	for pos < c.w {
		idx, inner := c.locate(pos)
		if idx >= len(c.components) {
			break
		}
		comp := c.components[idx]
		end := c.cumulative[idx+1]
		if end > c.w {
			end = c.w
		}
		b := comp.Bytes()
		lo := inner
		hi := inner + (end - pos)
		if hi > len(b) {
			hi = len(b)
		}
		out = append(out, b[lo:hi]...)
		pos = end
	}
	return out
}

// Slice copies the window [offset, offset+length) into a fresh buffer with
// its own reference count of 1. Unlike a byteBuffer slice, the result
// shares neither storage nor reference count with the composite or its
// components.
func (c *Composite) Slice(offset, length int) (Buffer, error) {
	if offset < 0 || length < 0 || offset+length > c.Capacity() {
		return nil, ErrIndexOutOfRange
	}
	b := newRoot(length, length, nil)
	saved := c.r
	c.r = offset
	_, err := c.Read(b.store.buf[:length])
	c.r = saved
	if err != nil {
		return nil, err
	}
	b.w = length
	return b, nil
}

func (c *Composite) Duplicate() Buffer {
	dup := *c
	return &dup
}

func (c *Composite) RefCount() int32 { return c.rc.n.Load() }

func (c *Composite) Retain() Buffer {
	n := c.rc.n.Add(1)
	if n <= 1 {
		panic(fmt.Errorf("buf: %w: retain on released buffer", ErrReferenceCountViolation))
	}
	return c
}

// Release releases the composite's own count and, once it reaches zero,
// releases every component exactly once.
func (c *Composite) Release() bool {
	n := c.rc.n.Add(-1)
	if n < 0 {
		panic(ErrReferenceCountViolation)
	}
	if n == 0 {
		for _, comp := range c.components {
			comp.Release()
		}
		return true
	}
	return false
}
