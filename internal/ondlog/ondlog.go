// Package ondlog defines the small logging interface the loader
// reports through: structured, leveled, with a handful of key/value
// fields per call, matching the shape consumed by the pack's
// userspace services (e.g. e2b-dev-infra's logger.Logger parameter).
// The default implementation wraps the standard library's log/slog,
// the closest structured logger available without pulling in a
// third-party logging stack no repo in the retrieval set actually
// uses (see DESIGN.md).
package ondlog

import (
	"log/slog"
	"os"
)

// Logger is the logging surface the loader depends on.
type Logger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type slogLogger struct {
	l *slog.Logger
}

// Default returns a Logger backed by slog, writing leveled text to
// stderr.
func Default() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

func (s *slogLogger) Info(msg string, kv ...any)  { s.l.Info(msg, kv...) }
func (s *slogLogger) Warn(msg string, kv ...any)  { s.l.Warn(msg, kv...) }
func (s *slogLogger) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }
