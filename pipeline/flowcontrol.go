package pipeline

// releasable is implemented by any message carrying a reference count
// (buf.Buffer satisfies it); FlowControlHandler releases queued messages
// of this kind when discarding them on channel-inactive.
type releasable interface{ Release() bool }

// FlowControlHandler buffers inbound messages while auto-read is off,
// releasing exactly one per downstream read() request, and drains +
// releases every queued message once the channel goes inactive.
type FlowControlHandler struct {
	InboundAdapter
	OutboundAdapter

	autoRead bool
	queue    []any
}

// NewFlowControlHandler constructs a FlowControlHandler. autoRead mirrors
// the channel's own auto-read configuration: when true this handler is a
// pure pass-through.
func NewFlowControlHandler(autoRead bool) *FlowControlHandler {
	return &FlowControlHandler{autoRead: autoRead}
}

func (f *FlowControlHandler) Mask() EventMask {
	return MaskChannelRead | MaskChannelInactive | MaskRead
}

func (f *FlowControlHandler) ChannelRead(ctx *HandlerContext, msg any) {
	if f.autoRead {
		ctx.FireChannelRead(msg)
		return
	}
	f.queue = append(f.queue, msg)
}

// Read intercepts the outbound read() request: if a message is already
// queued it is delivered immediately without reaching the transport,
// otherwise the request passes through to pull more data.
func (f *FlowControlHandler) Read(ctx *HandlerContext) {
	if len(f.queue) > 0 {
		msg := f.queue[0]
		f.queue = f.queue[1:]
		ctx.FireChannelRead(msg)
		return
	}
	ctx.Read()
}

func (f *FlowControlHandler) ChannelInactive(ctx *HandlerContext) {
	for _, msg := range f.queue {
		if r, ok := msg.(releasable); ok {
			r.Release()
		}
	}
	f.queue = nil
	ctx.FireChannelInactive()
}

var (
	_ InboundHandler  = (*FlowControlHandler)(nil)
	_ OutboundHandler = (*FlowControlHandler)(nil)
)
