package eventloop

import (
	"sync"
	"weak"
)

// registry tracks every live Promise created by a Loop using weak pointers,
// so Promises the caller has dropped can be garbage collected without the
// loop ever pinning them. Scavenge periodically walks a ring-buffer
// cursor over the registry, evicting settled or collected entries a batch
// at a time, and RejectAll is invoked once during shutdown so no promise a
// caller is still waiting on hangs forever.
type registry struct {
	mu     sync.RWMutex
	data   map[uint64]weak.Pointer[promise]
	ring   []uint64
	head   int
	nextID uint64
}

func newRegistry() *registry {
	return &registry{
		data:   make(map[uint64]weak.Pointer[promise]),
		ring:   make([]uint64, 0, 256),
		nextID: 1,
	}
}

// NewPromise creates, registers, and returns a fresh pending promise.
func (r *registry) NewPromise() *promise {
	p := newPromise()
	wp := weak.Make(p)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.data[id] = wp
	r.ring = append(r.ring, id)
	r.mu.Unlock()

	return p
}

// Scavenge checks up to batchSize ring entries past the cursor, evicting
// any that were garbage collected or have already settled.
func (r *registry) Scavenge(batchSize int) {
	if batchSize <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.ring)
	if n == 0 {
		return
	}
	end := min(r.head+batchSize, n)

	for i := r.head; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		wp, ok := r.data[id]
		if !ok {
			continue
		}
		p := wp.Value()
		if p == nil || p.State() != Pending {
			delete(r.data, id)
			r.ring[i] = 0
		}
	}

	if end >= n {
		r.head = 0
		r.compact()
	} else {
		r.head = end
	}
}

// compact drops null markers from the ring. Must be called with mu held.
func (r *registry) compact() {
	if len(r.data)*4 > len(r.ring) {
		// Load factor high enough that compaction isn't worth the copy.
		return
	}
	newRing := make([]uint64, 0, len(r.data))
	for _, id := range r.ring {
		if id != 0 {
			newRing = append(newRing, id)
		}
	}
	r.ring = newRing
}

// RejectAll fails every still-pending promise with err. Called once during
// shutdown.
func (r *registry) RejectAll(err error) {
	r.mu.Lock()
	data := r.data
	r.data = make(map[uint64]weak.Pointer[promise])
	r.ring = r.ring[:0]
	r.head = 0
	r.mu.Unlock()

	for _, wp := range data {
		if p := wp.Value(); p != nil {
			p.Fail(err)
		}
	}
}
