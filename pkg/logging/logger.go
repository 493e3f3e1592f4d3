package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey  contextKey = "requestID"
	observerIDKey contextKey = "observerID"
)

// LevelTrace sits below debug for per-hop chatter
const LevelTrace = slog.LevelDebug - 4

var logger atomic.Pointer[slog.Logger]

func init() {
	// Compact console output by default; SetJSONOutput for log shippers
	SetLevel(slog.LevelInfo)
}

func current() *slog.Logger {
	return logger.Load()
}

// SetLevel installs the compact handler at the given level
func SetLevel(level slog.Level) {
	SetOutput(os.Stdout, level, false)
}

// SetJSONOutput switches to JSON format output
func SetJSONOutput(level slog.Level) {
	SetOutput(os.Stdout, level, true)
}

// SetOutput installs a handler writing to w
func SetOutput(w io.Writer, level slog.Level, json bool) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = NewCompactHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// ParseLevel maps a verbosity name to a slog level.
// An empty name yields info, raised by one step per verbose count.
func ParseLevel(name string, verbose int) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "":
		switch {
		case verbose >= 2:
			return LevelTrace, nil
		case verbose == 1:
			return slog.LevelDebug, nil
		default:
			return slog.LevelInfo, nil
		}
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger exposes the underlying slog logger for libraries that want one
func Logger() *slog.Logger {
	return current()
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithObserverID tags the context of a push-channel connection
func WithObserverID(ctx context.Context, observerID string) context.Context {
	return context.WithValue(ctx, observerIDKey, observerID)
}

// GetObserverID retrieves the observer ID from context
func GetObserverID(ctx context.Context) string {
	if id, ok := ctx.Value(observerIDKey).(string); ok {
		return id
	}
	return ""
}

// withContextIDs prepends request and observer ids found in ctx
func withContextIDs(ctx context.Context, args []any) []any {
	if id := GetObserverID(ctx); id != "" {
		args = append([]any{"observer", id}, args...)
	}
	if id := GetRequestID(ctx); id != "" {
		args = append([]any{"requestID", id}, args...)
	}
	return args
}

// Trace logs at TRACE level (per-hop decisions, very verbose)
func Trace(msg string, args ...any) {
	current().Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// DebugContext logs at DEBUG level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	current().DebugContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// WarnContext logs at WARN level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	current().WarnContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Error logs at ERROR level
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Fatal logs at ERROR level and exits
func Fatal(msg string, args ...any) {
	current().Error(msg, args...)
	os.Exit(1)
}
