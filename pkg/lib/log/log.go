// Package log provides kadcore's logging entry point: a thin wrapper over
// log/slog with a per-component lazy logger that always resolves against
// the current slog.Default(), so a caller can swap output destinations at
// runtime without re-threading a *slog.Logger through every constructor.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

var defaultLogger = slog.Default()

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

func SetDefault(l *slog.Logger) {
	defaultLogger = l
	slog.SetDefault(l)
}

func Default() *slog.Logger {
	return slog.Default()
}

func New(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func NewJSON(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetOutput redirects the default logger's output, e.g. to a log file.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(defaultLogger)
}

func SetOutputWithLevel(w io.Writer, level slog.Level) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(defaultLogger)
}

func SetLevel(level slog.Level) {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(defaultLogger)
}

// LazyLogger resolves slog.Default() on every call rather than capturing
// it at construction, so Logger(component) can be assigned to a package
// var before the caller's logging setup has run.
type LazyLogger struct {
	component string
}

func (l *LazyLogger) Debug(msg string, args ...any) { slog.Default().With("component", l.component).Debug(msg, args...) }
func (l *LazyLogger) Info(msg string, args ...any)  { slog.Default().With("component", l.component).Info(msg, args...) }
func (l *LazyLogger) Warn(msg string, args ...any)  { slog.Default().With("component", l.component).Warn(msg, args...) }
func (l *LazyLogger) Error(msg string, args ...any) { slog.Default().With("component", l.component).Error(msg, args...) }

func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).DebugContext(ctx, msg, args...)
}
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).InfoContext(ctx, msg, args...)
}
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).WarnContext(ctx, msg, args...)
}
func (l *LazyLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).ErrorContext(ctx, msg, args...)
}

func (l *LazyLogger) With(args ...any) *slog.Logger {
	return slog.Default().With("component", l.component).With(args...)
}

func WithComponent(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Logger returns a LazyLogger scoped to component.
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func Debug(msg string, args ...any) { slog.Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Default().Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Default().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) { slog.Default().DebugContext(ctx, msg, args...) }
func InfoContext(ctx context.Context, msg string, args ...any)  { slog.Default().InfoContext(ctx, msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any)  { slog.Default().WarnContext(ctx, msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) { slog.Default().ErrorContext(ctx, msg, args...) }

// TruncateID trims id to maxLen characters, for logging identifiers whose
// full form would be unreadably long.
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
