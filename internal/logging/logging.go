// Package logging wires the teacher's own structured logging stack
// (github.com/joeycumines/logiface fronting a github.com/joeycumines/stumpy
// JSON sink) behind a small key-value Logger interface, so call sites don't
// need to know about logiface's generic Event type.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logging interface used throughout gemforge.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

type stumpyLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// New builds a Logger writing leveled JSON lines to w at the given level
// ("debug", "info", "warn", "error"; defaults to "info").
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(parseLevel(level)),
	)
	return &stumpyLogger{l: l}
}

func parseLevel(level string) logiface.Level {
	switch level {
	case "debug":
		return logiface.LevelDebug
	case "warn", "warning":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func (s *stumpyLogger) Debug(msg string, kv ...any) { emit(s.l.Debug(), msg, kv) }
func (s *stumpyLogger) Info(msg string, kv ...any)  { emit(s.l.Info(), msg, kv) }
func (s *stumpyLogger) Warn(msg string, kv ...any)  { emit(s.l.Warning(), msg, kv) }
func (s *stumpyLogger) Error(msg string, kv ...any) { emit(s.l.Err(), msg, kv) }

// With returns a Logger whose entries are always tagged with kv. Because
// logiface.Builder fields are attached per-entry rather than per-logger, the
// tags are stored and replayed on every subsequent call.
func (s *stumpyLogger) With(kv ...any) Logger {
	return &taggedLogger{base: s, tags: append([]any(nil), kv...)}
}

type taggedLogger struct {
	base *stumpyLogger
	tags []any
}

func (t *taggedLogger) Debug(msg string, kv ...any) { t.base.Debug(msg, append(t.tags, kv...)...) }
func (t *taggedLogger) Info(msg string, kv ...any)  { t.base.Info(msg, append(t.tags, kv...)...) }
func (t *taggedLogger) Warn(msg string, kv ...any)  { t.base.Warn(msg, append(t.tags, kv...)...) }
func (t *taggedLogger) Error(msg string, kv ...any) { t.base.Error(msg, append(t.tags, kv...)...) }
func (t *taggedLogger) With(kv ...any) Logger {
	return &taggedLogger{base: t.base, tags: append(append([]any(nil), t.tags...), kv...)}
}

func emit(b *logiface.Builder[*stumpy.Event], msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		b = b.Any(key, kv[i+1])
	}
	b.Log(msg)
}

// discardLogger implements Logger with no-ops, used as a safe default.
type discardLogger struct{}

// Discard returns a Logger that drops everything.
func Discard() Logger { return discardLogger{} }

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
func (discardLogger) With(...any) Logger   { return discardLogger{} }
