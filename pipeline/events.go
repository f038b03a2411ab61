// Package pipeline implements the bidirectional doubly-linked chain of
// handler contexts that propagates inbound events forward and outbound
// operations backward along a channel.
package pipeline

// EventMask is the bitset a Handler declares at construction, naming which
// of the pipeline's named events it implements. Propagation walks the
// chain one context at a time and calls only contexts whose mask has the
// event's bit, so an uninterested handler is stepped over without a
// pass-through call; no skip links are precomputed, so the walk still
// visits every context between the source and the next interested one.
type EventMask uint16

// Inbound event bits.
const (
	MaskChannelRegistered EventMask = 1 << iota
	MaskChannelUnregistered
	MaskChannelActive
	MaskChannelInactive
	MaskChannelRead
	MaskChannelReadComplete
	MaskChannelWritabilityChanged
	MaskExceptionCaught
	MaskUserEventTriggered
)

// Outbound operation bits.
const (
	MaskBind EventMask = 1 << (iota + 9)
	MaskConnect
	MaskDisconnect
	MaskClose
	MaskRead
	MaskWrite
	MaskFlush
)

// MaskAllInbound and MaskAllOutbound are convenience unions, used by the
// head/tail sentinels which are interested in everything in their
// respective direction.
const (
	MaskAllInbound = MaskChannelRegistered | MaskChannelUnregistered | MaskChannelActive |
		MaskChannelInactive | MaskChannelRead | MaskChannelReadComplete |
		MaskChannelWritabilityChanged | MaskExceptionCaught | MaskUserEventTriggered
	MaskAllOutbound = MaskBind | MaskConnect | MaskDisconnect | MaskClose | MaskRead | MaskWrite | MaskFlush
)

// Has reports whether m contains every bit set in other.
func (m EventMask) Has(other EventMask) bool { return m&other == other }
