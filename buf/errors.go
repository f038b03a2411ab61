// Package buf provides the reference-counted byte buffer system used as the
// uniform payload representation between pipeline handlers.
package buf

import "errors"

// Sentinel errors describing the buffer layer's failure modes. These map
// directly onto the error kinds named by the framework: index-out-of-range
// and reference-count-violation.
var (
	// ErrIndexOutOfRange is returned when a read, write, or slice operation
	// would violate 0 <= readerIndex <= writerIndex <= capacity <= maxCapacity.
	ErrIndexOutOfRange = errors.New("buf: index out of range")

	// ErrReferenceCountViolation is returned when a buffer already released
	// (refcount == 0) is accessed; retaining or releasing such a buffer
	// again panics with an error wrapping it.
	ErrReferenceCountViolation = errors.New("buf: illegal reference count (use after free or double release)")

	// ErrAllocatorExhausted is a retryable error surfaced to the caller when
	// an allocator cannot satisfy a request. The allocator never retries on
	// the caller's behalf.
	ErrAllocatorExhausted = errors.New("buf: allocator exhausted")

	// ErrMaxCapacityExceeded is returned when a write or grow would exceed
	// the buffer's max capacity.
	ErrMaxCapacityExceeded = errors.New("buf: max capacity exceeded")
)
