package pipeline

import (
	"time"

	"github.com/joeycumines/nettle/eventloop"
)

// IdleStateEvent is fired via UserEventTriggered when a channel has been
// idle in the given direction for at least the configured duration.
type IdleStateEvent struct {
	Read, Write bool
}

// IdleStateHandler fires IdleStateEvent when no inbound read and/or no
// outbound write has been observed for the configured durations. A zero
// duration disables detection in that direction. Built on Loop.Schedule
// rather than a free-running goroutine timer, so rescheduling happens on
// the channel's own loop.
type IdleStateHandler struct {
	InboundAdapter
	OutboundAdapter

	loop                *eventloop.Loop
	readIdle, writeIdle time.Duration

	readTask, writeTask eventloop.ScheduledTask
}

// NewIdleStateHandler constructs an IdleStateHandler scheduling its checks
// on loop.
func NewIdleStateHandler(loop *eventloop.Loop, readIdle, writeIdle time.Duration) *IdleStateHandler {
	return &IdleStateHandler{loop: loop, readIdle: readIdle, writeIdle: writeIdle}
}

func (h *IdleStateHandler) Mask() EventMask {
	return MaskChannelActive | MaskChannelInactive | MaskChannelRead | MaskWrite
}

func (h *IdleStateHandler) ChannelActive(ctx *HandlerContext) {
	h.armRead(ctx)
	h.armWrite(ctx)
	ctx.FireChannelActive()
}

func (h *IdleStateHandler) ChannelInactive(ctx *HandlerContext) {
	h.cancel()
	ctx.FireChannelInactive()
}

func (h *IdleStateHandler) ChannelRead(ctx *HandlerContext, msg any) {
	h.armRead(ctx)
	ctx.FireChannelRead(msg)
}

func (h *IdleStateHandler) Write(ctx *HandlerContext, msg any, promise eventloop.Promise) {
	h.armWrite(ctx)
	ctx.Write(msg, promise)
}

func (h *IdleStateHandler) armRead(ctx *HandlerContext) {
	if h.readIdle <= 0 {
		return
	}
	if h.readTask != nil {
		h.readTask.Cancel()
	}
	h.readTask, _ = h.loop.Schedule(h.readIdle, func() {
		ctx.FireUserEventTriggered(IdleStateEvent{Read: true})
	})
}

func (h *IdleStateHandler) armWrite(ctx *HandlerContext) {
	if h.writeIdle <= 0 {
		return
	}
	if h.writeTask != nil {
		h.writeTask.Cancel()
	}
	h.writeTask, _ = h.loop.Schedule(h.writeIdle, func() {
		ctx.FireUserEventTriggered(IdleStateEvent{Write: true})
	})
}

func (h *IdleStateHandler) cancel() {
	if h.readTask != nil {
		h.readTask.Cancel()
	}
	if h.writeTask != nil {
		h.writeTask.Cancel()
	}
}

// ReadTimeoutHandler fires ErrReadTimeout as an exception-caught event if
// no inbound read is observed within timeout of channel-active (or of the
// previous read).
type ReadTimeoutHandler struct {
	InboundAdapter

	loop    *eventloop.Loop
	timeout time.Duration
	task    eventloop.ScheduledTask
}

func NewReadTimeoutHandler(loop *eventloop.Loop, timeout time.Duration) *ReadTimeoutHandler {
	return &ReadTimeoutHandler{loop: loop, timeout: timeout}
}

func (h *ReadTimeoutHandler) Mask() EventMask {
	return MaskChannelActive | MaskChannelInactive | MaskChannelRead
}

func (h *ReadTimeoutHandler) ChannelActive(ctx *HandlerContext) {
	h.arm(ctx)
	ctx.FireChannelActive()
}

func (h *ReadTimeoutHandler) ChannelInactive(ctx *HandlerContext) {
	if h.task != nil {
		h.task.Cancel()
	}
	ctx.FireChannelInactive()
}

func (h *ReadTimeoutHandler) ChannelRead(ctx *HandlerContext, msg any) {
	h.arm(ctx)
	ctx.FireChannelRead(msg)
}

func (h *ReadTimeoutHandler) arm(ctx *HandlerContext) {
	if h.task != nil {
		h.task.Cancel()
	}
	h.task, _ = h.loop.Schedule(h.timeout, func() {
		ctx.FireExceptionCaught(ErrReadTimeout)
	})
}

// WriteTimeoutHandler fires ErrWriteTimeout as an exception-caught event if
// an outbound write's promise has not settled within timeout.
type WriteTimeoutHandler struct {
	OutboundAdapter

	loop    *eventloop.Loop
	timeout time.Duration
}

func NewWriteTimeoutHandler(loop *eventloop.Loop, timeout time.Duration) *WriteTimeoutHandler {
	return &WriteTimeoutHandler{loop: loop, timeout: timeout}
}

func (h *WriteTimeoutHandler) Mask() EventMask { return MaskWrite }

func (h *WriteTimeoutHandler) Write(ctx *HandlerContext, msg any, promise eventloop.Promise) {
	task, _ := h.loop.Schedule(h.timeout, func() {
		ctx.FireExceptionCaught(ErrWriteTimeout)
	})
	if promise != nil && task != nil {
		promise.OnComplete(func(eventloop.Promise) { task.Cancel() })
	}
	ctx.Write(msg, promise)
}

var (
	_ InboundHandler  = (*IdleStateHandler)(nil)
	_ OutboundHandler = (*IdleStateHandler)(nil)
	_ InboundHandler  = (*ReadTimeoutHandler)(nil)
	_ OutboundHandler = (*WriteTimeoutHandler)(nil)
)
