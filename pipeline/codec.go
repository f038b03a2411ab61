package pipeline

import "github.com/joeycumines/nettle/eventloop"

// DecodeFunc consumes one inbound message and produces zero or more
// replacement messages, forwarded individually. Producing zero messages
// is legal — the decoder is accumulating and has nothing to emit yet.
type DecodeFunc func(msg any) ([]any, error)

// MessageToMessageDecoder is the core's generic decoder shape: one inbound
// message in, a freshly allocated list of messages out, each forwarded in
// order. A decode error is turned into an exception-caught event starting
// at this handler's successor.
type MessageToMessageDecoder struct {
	InboundAdapter
	Decode DecodeFunc
}

// NewMessageToMessageDecoder wraps decode as a pipeline InboundHandler.
func NewMessageToMessageDecoder(decode DecodeFunc) *MessageToMessageDecoder {
	return &MessageToMessageDecoder{Decode: decode}
}

func (d *MessageToMessageDecoder) Mask() EventMask { return MaskChannelRead }

func (d *MessageToMessageDecoder) ChannelRead(ctx *HandlerContext, msg any) {
	out, err := d.Decode(msg)
	if err != nil {
		ctx.FireExceptionCaught(err)
		return
	}
	for _, m := range out {
		ctx.FireChannelRead(m)
	}
}

// EncodeFunc consumes one outbound message and produces zero or more
// replacement messages written onward in order.
type EncodeFunc func(msg any) ([]any, error)

// MessageToMessageEncoder is the outbound mirror of
// MessageToMessageDecoder: one outbound message in, a list out, each
// written onward toward the transport. An encode error fails the
// original write's promise rather than surfacing as an inbound exception,
// per the framework's rule that outbound failures never become
// exception-caught events.
type MessageToMessageEncoder struct {
	OutboundAdapter
	Encode EncodeFunc
}

func NewMessageToMessageEncoder(encode EncodeFunc) *MessageToMessageEncoder {
	return &MessageToMessageEncoder{Encode: encode}
}

func (e *MessageToMessageEncoder) Mask() EventMask { return MaskWrite }

// Write encodes msg into zero or more outbound messages. The original
// promise completes with the last emitted message's write; if encode
// produces nothing, the promise succeeds immediately since there is
// nothing left to write.
func (e *MessageToMessageEncoder) Write(ctx *HandlerContext, msg any, promise eventloop.Promise) {
	out, err := e.Encode(msg)
	if err != nil {
		if promise != nil {
			promise.Fail(err)
		}
		return
	}
	if len(out) == 0 {
		if promise != nil {
			promise.Succeed(nil)
		}
		return
	}
	for i, m := range out {
		if i == len(out)-1 {
			ctx.Write(m, promise)
		} else {
			ctx.Write(m, nil)
		}
	}
}
