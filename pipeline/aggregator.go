package pipeline

import (
	"errors"

	"github.com/joeycumines/nettle/buf"
)

// ErrTooLongFrame is fired as an exception-caught event when an
// Aggregator's accumulated size would exceed its configured maximum.
var ErrTooLongFrame = errors.New("pipeline: aggregated message exceeds maximum size")

// Start is implemented by the message that opens an aggregation sequence,
// reporting how many bytes it itself contributes toward the size cap.
type Start interface {
	StartLen() int
}

// Content is implemented by messages that carry accumulating payload
// bytes, with IsLast reporting whether this is the terminal content
// message of the sequence.
type Content interface {
	ContentBytes() []byte
	IsLast() bool
}

// Aggregated is the single message an Aggregator emits once a sequence's
// terminal Content arrives: the original Start plus a buffer holding every
// Content's bytes concatenated in arrival order.
type Aggregated struct {
	Start   Start
	Content buf.Buffer
}

// Aggregator holds a Start plus accumulating Content until a terminal
// Content arrives, then emits one Aggregated message. Exceeding MaxSize
// discards the in-flight state and fires ErrTooLongFrame instead.
type Aggregator struct {
	InboundAdapter
	MaxSize int

	alloc buf.Allocator
	start Start
	acc   buf.Buffer
	size  int
}

// NewAggregator constructs an Aggregator capping accumulated size
// (start + content bytes) at maxSize, allocating its accumulation buffer
// from alloc.
func NewAggregator(maxSize int, alloc buf.Allocator) *Aggregator {
	return &Aggregator{MaxSize: maxSize, alloc: alloc}
}

func (a *Aggregator) Mask() EventMask { return MaskChannelRead }

func (a *Aggregator) reset() {
	if a.acc != nil {
		a.acc.Release()
	}
	a.start, a.acc, a.size = nil, nil, 0
}

func (a *Aggregator) ChannelRead(ctx *HandlerContext, msg any) {
	switch m := msg.(type) {
	case Start:
		a.reset()
		a.start = m
		a.size = m.StartLen()
		initial := 64
		if initial > a.MaxSize {
			initial = a.MaxSize
		}
		acc, err := a.alloc.Buffer(initial, a.MaxSize)
		if err != nil {
			a.start = nil
			a.size = 0
			ctx.FireExceptionCaught(err)
			return
		}
		a.acc = acc
	case Content:
		if a.start == nil {
			ctx.FireExceptionCaught(errors.New("pipeline: content received with no active aggregation"))
			return
		}
		b := m.ContentBytes()
		if a.size+len(b) > a.MaxSize {
			a.reset()
			ctx.FireExceptionCaught(ErrTooLongFrame)
			return
		}
		if _, err := a.acc.Write(b); err != nil {
			a.reset()
			ctx.FireExceptionCaught(err)
			return
		}
		a.size += len(b)
		if m.IsLast() {
			agg := &Aggregated{Start: a.start, Content: a.acc}
			a.start, a.acc, a.size = nil, nil, 0
			ctx.FireChannelRead(agg)
		}
	default:
		ctx.FireChannelRead(msg)
	}
}
