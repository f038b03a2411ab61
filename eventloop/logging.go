package eventloop

import (
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// LogLevel is the severity of a log record emitted by a Loop. It mirrors
// the subset of syslog-style levels the framework actually uses.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the narrow logging surface the eventloop, channel, and pipeline
// packages log through: a Loop exposes its configured Logger via
// Loop.Logger(), and channel/baseChannel and pipeline/tailHandler both
// read it through that accessor rather than reaching for the standard
// library's log package. It is satisfied by a wrapped
// logiface.Logger[*stumpy.Event], keeping the generic logiface/stumpy types
// out of every package's public API.
type Logger interface {
	Logf(level LogLevel, format string, args ...any)
	With(key string, val any) Logger
}

// NewLogger wraps a logiface logger configured with the stumpy backend,
// writing newline-delimited JSON to w. Passing a nil w defaults to stderr.
func NewLogger(w *os.File, level LogLevel) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := logiface.New(
		stumpy.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](toLogifaceLevel(level)),
	)
	return &logifaceLogger{l: l}
}

// NewNoopLogger returns a Logger that discards everything, the default for
// a Loop constructed without WithLogger.
func NewNoopLogger() Logger { return noopLogger{} }

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

type logifaceLogger struct {
	l      *logiface.Logger[*stumpy.Event]
	fields []field
}

type field struct {
	key string
	val any
}

func (g *logifaceLogger) With(key string, val any) Logger {
	next := make([]field, len(g.fields), len(g.fields)+1)
	copy(next, g.fields)
	next = append(next, field{key, val})
	return &logifaceLogger{l: g.l, fields: next}
}

func (g *logifaceLogger) Logf(level LogLevel, format string, args ...any) {
	b := g.l.Build(toLogifaceLevel(level))
	if b == nil {
		return
	}
	for _, f := range g.fields {
		b = b.Any(f.key, f.val)
	}
	b.Logf(format, args...)
}

type noopLogger struct{}

func (noopLogger) Logf(LogLevel, string, ...any) {}
func (noopLogger) With(string, any) Logger        { return noopLogger{} }

// logf is the Loop's internal convenience wrapper, used so call sites read
// the way the rest of the codebase's short helper methods do.
func (l *Loop) logf(level LogLevel, format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Logf(level, format, args...)
}

// Logger returns the Loop's configured Logger (NewNoopLogger by default),
// so that channel and pipeline code wired to the loop can log through the
// same ambient logiface/stumpy pipeline rather than reaching for the
// standard library's log package directly.
func (l *Loop) Logger() Logger {
	if l.logger == nil {
		return NewNoopLogger()
	}
	return l.logger
}
