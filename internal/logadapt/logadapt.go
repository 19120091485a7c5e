// Package logadapt is netcore-go's structured logging facade. It mirrors
// the shape of the teacher's own package-level Logger interface
// (eventloop.Logger / eventloop.LogEntry) but backs it with
// github.com/joeycumines/logiface instead of a hand-rolled writer, so the
// rest of netcore-go depends on a small non-generic interface while the
// concrete implementation is free to be generic over logiface's Event type.
package logadapt

import (
	"io"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/rs/zerolog"
)

// Event is a single in-flight log entry. Unlike logiface.Builder, which is
// generic over the backend's event type, Event is a plain interface so that
// reactor, server, and pool never need a type parameter just to log.
type Event interface {
	Str(key, val string) Event
	Int(key string, val int) Event
	Err(err error) Event
	Log(msg string)
}

// Logger is the logging surface used throughout netcore-go.
type Logger interface {
	Debug() Event
	Info() Event
	Warn() Event
	Error() Event
}

// Noop discards everything logged to it.
var Noop Logger = noopLogger{}

type noopLogger struct{}

func (noopLogger) Debug() Event { return noopEvent{} }
func (noopLogger) Info() Event  { return noopEvent{} }
func (noopLogger) Warn() Event  { return noopEvent{} }
func (noopLogger) Error() Event { return noopEvent{} }

type noopEvent struct{}

func (noopEvent) Str(string, string) Event { return noopEvent{} }
func (noopEvent) Int(string, int) Event    { return noopEvent{} }
func (noopEvent) Err(error) Event          { return noopEvent{} }
func (noopEvent) Log(string)               {}

// NewZerolog wires a github.com/rs/zerolog logger as the backend, via the
// teacher's izerolog adapter for logiface. reactor.New does not use it by
// default (its default is Noop); pass it through reactor.WithLogger.
func NewZerolog(z zerolog.Logger) Logger {
	l := logiface.New[*izerolog.Event](izerolog.WithZerolog(z))
	return zerologLogger{l: l}
}

// NewStumpy wires github.com/joeycumines/stumpy, a zero-allocation JSON
// writer, as an alternate backend for callers that want to avoid zerolog's
// dependency footprint.
func NewStumpy(w io.Writer) Logger {
	l := logiface.New[*stumpy.Event](stumpy.WithStumpy(stumpy.WithWriter(w)))
	return stumpyLogger{l: l}
}

type zerologLogger struct{ l *logiface.Logger[*izerolog.Event] }

func (z zerologLogger) Debug() Event { return zerologEvent{z.l.Debug()} }
func (z zerologLogger) Info() Event  { return zerologEvent{z.l.Info()} }
func (z zerologLogger) Warn() Event  { return zerologEvent{z.l.Warning()} }
func (z zerologLogger) Error() Event { return zerologEvent{z.l.Err()} }

type zerologEvent struct{ b *logiface.Builder[*izerolog.Event] }

func (e zerologEvent) Str(key, val string) Event { e.b.Str(key, val); return e }
func (e zerologEvent) Int(key string, val int) Event { e.b.Int(key, val); return e }
func (e zerologEvent) Err(err error) Event { e.b.Err(err); return e }
func (e zerologEvent) Log(msg string) { e.b.Log(msg) }

type stumpyLogger struct{ l *logiface.Logger[*stumpy.Event] }

func (s stumpyLogger) Debug() Event { return stumpyEvent{s.l.Debug()} }
func (s stumpyLogger) Info() Event  { return stumpyEvent{s.l.Info()} }
func (s stumpyLogger) Warn() Event  { return stumpyEvent{s.l.Warning()} }
func (s stumpyLogger) Error() Event { return stumpyEvent{s.l.Err()} }

type stumpyEvent struct{ b *logiface.Builder[*stumpy.Event] }

func (e stumpyEvent) Str(key, val string) Event { e.b.Str(key, val); return e }
func (e stumpyEvent) Int(key string, val int) Event { e.b.Int(key, val); return e }
func (e stumpyEvent) Err(err error) Event { e.b.Err(err); return e }
func (e stumpyEvent) Log(msg string) { e.b.Log(msg) }
