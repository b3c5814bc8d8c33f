// Package logging carries the launcher's diagnostics.
//
// Everything the launcher reports, from debug traces of individual mount
// calls to the one-shot warning when a unified cgroup host is first
// detected, goes through a log/slog logger obtained here. A process-wide
// default can be swapped once the CLI has parsed its flags; code that
// runs earlier still logs through the initial stderr text logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// loggerKey keys a logger stored in a context.
type loggerKey struct{}

// defaultLogger is read on every package-level log call, so swapping it
// must be safe against concurrent logging.
var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(NewLogger(Config{}))
}

// Config selects how a logger writes.
type Config struct {
	// Level is the minimum level a record needs to be written.
	Level slog.Level
	// Format selects "text" or "json" records. Anything else,
	// including an empty string, means text.
	Format string
	// Output receives the records; nil means standard error.
	Output io.Writer
	// AddSource stamps each record with its call site.
	AddSource bool
}

// NewLogger builds a logger for the given configuration.
func NewLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// SetDefault installs logger as the process-wide default.
func SetDefault(logger *slog.Logger) {
	defaultLogger.Store(logger)
}

// Default returns the process-wide default logger.
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// The With helpers stamp a logger with the identifiers used throughout
// the launcher, so every record for one invocation carries the same
// fields.

// WithTag binds the security tag being confined.
func WithTag(logger *slog.Logger, tag string) *slog.Logger {
	return logger.With(slog.String("security_tag", tag))
}

// WithSnap binds the snap name, for operations keyed on the snap rather
// than one of its applications.
func WithSnap(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("snap", name))
}

// WithPID binds a process id.
func WithPID(logger *slog.Logger, pid int) *slog.Logger {
	return logger.With(slog.Int("pid", pid))
}

// WithPath binds a filesystem path.
func WithPath(logger *slog.Logger, path string) *slog.Logger {
	return logger.With(slog.String("path", path))
}

// ContextWithLogger stores logger in a context, for call chains that
// thread a context rather than a logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, falling back to the
// process-wide default when none was stored.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// levelNames maps the accepted level-name spellings.
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a level name to its slog.Level. Unknown names fall
// back to info rather than failing; a bad logging flag should never
// stop a launch.
func ParseLevel(level string) slog.Level {
	if l, ok := levelNames[level]; ok {
		return l
	}
	return slog.LevelInfo
}

// Debug logs at debug level through the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level through the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level through the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level through the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
