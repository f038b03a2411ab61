package channel

import "github.com/joeycumines/nettle/buf"

// Config holds a channel's tunables: the buffer allocator, write-buffer
// water-marks, auto-read behaviour, the per-read message cap, and an
// arbitrary attribute bag for user-defined per-channel state (the
// attribute-map half of spec.md's channel configuration data model; the
// options half is the functional-option constructors below).
type Config struct {
	Allocator          buf.Allocator
	HighWaterMark      int
	LowWaterMark       int
	AutoRead           bool
	MaxMessagesPerRead int
	RecvBufferInitial  int
	RecvBufferMin      int
	RecvBufferMax      int
	SizeEstimator      MessageSizeEstimator

	attrs map[string]any
}

// DefaultConfig returns a Config with conservative, generally-applicable
// defaults: a pooled allocator, 64KB/16KB write water-marks (matching
// spec.md §8's back-pressure scenario), auto-read on, and a per-batch read
// cap of 16 messages.
func DefaultConfig() *Config {
	return &Config{
		Allocator:          buf.NewPooledAllocator(),
		HighWaterMark:      64 * 1024,
		LowWaterMark:       16 * 1024,
		AutoRead:           true,
		MaxMessagesPerRead: 16,
		RecvBufferInitial:  2048,
		RecvBufferMin:      64,
		RecvBufferMax:      1 << 20,
		SizeEstimator:      ByteSizeEstimator{UnknownSize: 16},
	}
}

// Attr returns a per-channel attribute previously set with SetAttr, and
// whether it was present.
func (c *Config) Attr(key string) (any, bool) {
	if c.attrs == nil {
		return nil, false
	}
	v, ok := c.attrs[key]
	return v, ok
}

// SetAttr stores a per-channel attribute.
func (c *Config) SetAttr(key string, value any) {
	if c.attrs == nil {
		c.attrs = make(map[string]any)
	}
	c.attrs[key] = value
}

// Option mutates a Config at channel construction time, the same
// functional-options shape used by eventloop.Option.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithAllocator overrides the buffer allocator.
func WithAllocator(a buf.Allocator) Option {
	return optionFunc(func(c *Config) { c.Allocator = a })
}

// WithWaterMarks overrides the write-buffer high/low water-marks.
func WithWaterMarks(low, high int) Option {
	return optionFunc(func(c *Config) { c.LowWaterMark, c.HighWaterMark = low, high })
}

// WithAutoRead overrides the auto-read default.
func WithAutoRead(enabled bool) Option {
	return optionFunc(func(c *Config) { c.AutoRead = enabled })
}

// WithMaxMessagesPerRead overrides the per-readable-event message cap.
func WithMaxMessagesPerRead(n int) Option {
	return optionFunc(func(c *Config) { c.MaxMessagesPerRead = n })
}

// WithAttr sets an initial attribute.
func WithAttr(key string, value any) Option {
	return optionFunc(func(c *Config) { c.SetAttr(key, value) })
}

func resolveConfig(opts []Option) *Config {
	c := DefaultConfig()
	for _, o := range opts {
		if o != nil {
			o.apply(c)
		}
	}
	return c
}
