// Package logging provides the structured logger every component in this
// service is constructed with, grounded on the teacher's component-logger
// idiom (internal/shared/utils logger_test.go): one slog-backed logger per
// component name, level resolved from an environment variable, INFO by
// default.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// levelEnvVar names the environment variable that overrides the default
// log level for every component logger built by NewComponentLogger.
const levelEnvVar = "ORCHESTRATOR_LOG_LEVEL"

// Logger is the structured logging contract components are built against.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a derived Logger that always includes the given
	// key/value pairs, mirroring slog.Logger.With.
	With(args ...any) Logger
}

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s *slogLogger) With(args ...any) Logger       { return &slogLogger{l: s.l.With(args...)} }

func resolveLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(os.Getenv(levelEnvVar))) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewComponentLogger builds a Logger tagged with component=name, writing
// structured text to stderr at the level named by ORCHESTRATOR_LOG_LEVEL
// (default INFO).
func NewComponentLogger(name string) Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: resolveLevel()})
	return &slogLogger{l: slog.New(handler).With("component", name)}
}

// OrNop returns l unchanged if non-nil, else a Logger that discards
// everything. Every component constructor accepts a possibly-nil Logger
// and passes it through OrNop so callers never need a nil check.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }

// Nop returns a Logger that discards every call; used in tests and as the
// OrNop fallback.
func Nop() Logger { return nopLogger{} }

// contextKey avoids collisions in context.Context values.
type contextKey struct{}

// WithContext attaches l to ctx so request-scoped code can retrieve it via
// FromContext without threading it through every call.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext retrieves the Logger attached by WithContext, or a no-op
// Logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return Nop()
}
