package pipeline

import (
	"encoding/binary"

	"github.com/joeycumines/nettle/buf"
)

// LengthFieldFrameDecoder accumulates inbound byte chunks (raw []byte or
// buf.Buffer) across reads and emits one []byte payload per complete
// four-byte-big-endian-length-prefixed frame, buffering any partial frame
// for the next ChannelRead. A buf.Buffer chunk is consumed and released
// by this handler rather than forwarded.
type LengthFieldFrameDecoder struct {
	InboundAdapter
	MaxFrameLength int

	alloc buf.Allocator
	acc   buf.Buffer
}

// NewLengthFieldFrameDecoder constructs a decoder rejecting any declared
// frame length above maxFrameLength, allocating its accumulation buffer
// from alloc.
func NewLengthFieldFrameDecoder(maxFrameLength int, alloc buf.Allocator) *LengthFieldFrameDecoder {
	return &LengthFieldFrameDecoder{MaxFrameLength: maxFrameLength, alloc: alloc}
}

func (d *LengthFieldFrameDecoder) Mask() EventMask { return MaskChannelRead }

// accumulatorCap bounds the accumulation buffer generously above
// MaxFrameLength+4: a single inbound chunk (one transport read) can
// legitimately be larger than a small configured MaxFrameLength without
// actually describing an oversized frame (e.g. it may contain several
// small frames back to back), so the buffer must have room to hold it
// long enough to reach the header check below, which is what actually
// decides whether the declared length is too large.
func (d *LengthFieldFrameDecoder) accumulatorCap() int {
	c := d.MaxFrameLength + 4
	if c < 65536 {
		c = 65536
	}
	return c
}

func (d *LengthFieldFrameDecoder) reset() {
	if d.acc != nil {
		d.acc.Release()
	}
	d.acc = nil
}

func (d *LengthFieldFrameDecoder) ChannelRead(ctx *HandlerContext, msg any) {
	var chunk []byte
	switch m := msg.(type) {
	case []byte:
		chunk = m
	case buf.Buffer:
		chunk = m.Bytes()
		defer m.Release()
	default:
		ctx.FireChannelRead(msg)
		return
	}
	if len(chunk) == 0 {
		return
	}

	if d.acc == nil {
		maxCap := d.accumulatorCap()
		initial := 256
		if initial > maxCap {
			initial = maxCap
		}
		acc, err := d.alloc.Buffer(initial, maxCap)
		if err != nil {
			ctx.FireExceptionCaught(err)
			return
		}
		d.acc = acc
	}
	if _, err := d.acc.Write(chunk); err != nil {
		d.reset()
		ctx.FireExceptionCaught(err)
		return
	}

	for {
		if d.acc.ReadableBytes() < 4 {
			break
		}
		header := d.acc.Bytes()
		n := int(binary.BigEndian.Uint32(header[:4]))
		if n > d.MaxFrameLength {
			d.reset()
			ctx.FireExceptionCaught(ErrFrameTooLarge)
			return
		}
		if d.acc.ReadableBytes() < 4+n {
			break
		}
		frame := make([]byte, n)
		copy(frame, header[4:4+n])
		if err := d.acc.SetReaderIndex(d.acc.ReaderIndex() + 4 + n); err != nil {
			d.reset()
			ctx.FireExceptionCaught(err)
			return
		}
		ctx.FireChannelRead(frame)
	}
	d.compact()
}

// compact discards already-consumed leading bytes so a long-lived
// connection's accumulation buffer doesn't grow toward MaxFrameLength on
// every read purely from the reader index advancing.
func (d *LengthFieldFrameDecoder) compact() {
	if d.acc == nil || d.acc.ReaderIndex() == 0 {
		return
	}
	remaining := d.acc.Bytes()
	if len(remaining) == 0 {
		d.acc.Release()
		d.acc = nil
		return
	}
	fresh, err := d.alloc.Buffer(len(remaining), d.accumulatorCap())
	if err != nil {
		return
	}
	_, _ = fresh.Write(remaining)
	d.acc.Release()
	d.acc = fresh
}

// NewLengthFieldPrepender returns a MessageToMessageEncoder that prepends a
// four-byte big-endian length header to each outbound []byte message, the
// wire format LengthFieldFrameDecoder strips back off.
func NewLengthFieldPrepender() *MessageToMessageEncoder {
	return NewMessageToMessageEncoder(func(msg any) ([]any, error) {
		b := msg.([]byte)
		framed := make([]byte, 4+len(b))
		binary.BigEndian.PutUint32(framed, uint32(len(b)))
		copy(framed[4:], b)
		return []any{framed}, nil
	})
}
