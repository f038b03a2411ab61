package pipeline

import "errors"

var (
	// ErrChunkedWriteInProgress is returned when a ChunkedWriteHandler
	// receives a new ChunkedInput while still draining a previous one.
	ErrChunkedWriteInProgress = errors.New("pipeline: chunked write already in progress")
	// ErrChunkedSourceAbandoned fails a ChunkedInput's write promise when
	// the channel goes inactive before the source is drained.
	ErrChunkedSourceAbandoned = errors.New("pipeline: chunked source abandoned on channel inactive")
	// ErrIdleTimeout is fired as a user event by IdleStateHandler.
	ErrIdleTimeout = errors.New("pipeline: channel idle timeout")
	// ErrReadTimeout is fired as an exception-caught event by
	// ReadTimeoutHandler.
	ErrReadTimeout = errors.New("pipeline: read timeout")
	// ErrWriteTimeout is fired as an exception-caught event by
	// WriteTimeoutHandler.
	ErrWriteTimeout = errors.New("pipeline: write timeout")
	// ErrFrameTooLarge is fired as an exception-caught event by
	// LengthFieldFrameDecoder when a declared frame length exceeds
	// MaxFrameLength.
	ErrFrameTooLarge = errors.New("pipeline: decoded frame length exceeds maximum")
)
