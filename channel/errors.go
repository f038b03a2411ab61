// Package channel implements the connection abstraction: registration on
// an eventloop.Loop, I/O readiness handling, the two-stage outbound write
// buffer, and channel lifecycle state.
package channel

import "errors"

// Error kinds named by the framework's error-handling design. Transport
// implementations wrap these with additional context via fmt.Errorf.
var (
	ErrTransportClosed        = errors.New("channel: transport closed")
	ErrTransportIO            = errors.New("channel: transport I/O error")
	ErrUnsupportedMessageType = errors.New("channel: unsupported message type")
	ErrNotOnEventLoop         = errors.New("channel: operation must run on the owning event loop")
	ErrShutdownInProgress     = errors.New("channel: shutdown in progress")
	ErrAlreadyRegistered      = errors.New("channel: already registered to an event loop")
	ErrClosed                 = errors.New("channel: already closed")
)
