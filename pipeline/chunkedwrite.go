package pipeline

import "github.com/joeycumines/nettle/eventloop"

// ChunkedInput is a lazy, finite sequence of payload chunks. HasNext/Next
// are only ever called from the owning channel's event loop.
type ChunkedInput interface {
	HasNext() bool
	Next() ([]byte, error)
	Close() error
}

// ChunkedWriteHandler accepts a ChunkedInput in place of a direct write,
// pulling one chunk per writable notification and issuing a write per
// chunk, applying back-pressure via the channel's writability signal. A
// direct write ([]byte or any other message) passes straight through.
type ChunkedWriteHandler struct {
	OutboundAdapter
	InboundAdapter

	isWritable func() bool

	current        ChunkedInput
	currentPromise eventloop.Promise
}

// NewChunkedWriteHandler constructs a ChunkedWriteHandler. isWritable
// should report the owning channel's current writability.
func NewChunkedWriteHandler(isWritable func() bool) *ChunkedWriteHandler {
	return &ChunkedWriteHandler{isWritable: isWritable}
}

func (h *ChunkedWriteHandler) Mask() EventMask {
	return MaskWrite | MaskChannelWritabilityChanged | MaskChannelInactive
}

func (h *ChunkedWriteHandler) Write(ctx *HandlerContext, msg any, promise eventloop.Promise) {
	input, ok := msg.(ChunkedInput)
	if !ok {
		ctx.Write(msg, promise)
		return
	}
	if h.current != nil {
		if promise != nil {
			promise.Fail(ErrChunkedWriteInProgress)
		}
		return
	}
	h.current = input
	h.currentPromise = promise
	h.pump(ctx)
}

func (h *ChunkedWriteHandler) pump(ctx *HandlerContext) {
	for h.current != nil && (h.isWritable == nil || h.isWritable()) {
		if !h.current.HasNext() {
			_ = h.current.Close()
			if h.currentPromise != nil {
				h.currentPromise.Succeed(nil)
			}
			h.current, h.currentPromise = nil, nil
			return
		}
		chunk, err := h.current.Next()
		if err != nil {
			_ = h.current.Close()
			if h.currentPromise != nil {
				h.currentPromise.Fail(err)
			}
			h.current, h.currentPromise = nil, nil
			return
		}
		ctx.Write(chunk, nil)
		ctx.Flush()
	}
}

func (h *ChunkedWriteHandler) ChannelWritabilityChanged(ctx *HandlerContext) {
	h.pump(ctx)
	ctx.FireChannelWritabilityChanged()
}

func (h *ChunkedWriteHandler) ChannelInactive(ctx *HandlerContext) {
	if h.current != nil {
		_ = h.current.Close()
		if h.currentPromise != nil {
			h.currentPromise.Fail(ErrChunkedSourceAbandoned)
		}
		h.current, h.currentPromise = nil, nil
	}
	ctx.FireChannelInactive()
}

var (
	_ OutboundHandler = (*ChunkedWriteHandler)(nil)
	_ InboundHandler  = (*ChunkedWriteHandler)(nil)
)
