package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
)

type contextKey struct{}

var (
	loggerKey       = contextKey{}
	defaultLogger   *slog.Logger
	defaultLoggerMu sync.RWMutex
)

// stdout is reserved for chat output and the MCP stdio transport
func init() {
	defaultLogger = New(slog.LevelInfo, os.Stderr)
}

// ParseLevel converts "debug", "info", "warn", "warning" or "error"
// (case-insensitive) to slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, goerr.New("invalid log level", goerr.V("level", level))
	}
}

type options struct {
	json bool
}

// Option configures New
type Option func(*options)

// WithJSON switches to one JSON object per line for log collectors
func WithJSON() Option {
	return func(o *options) {
		o.json = true
	}
}

// New creates a logger writing to w. The console handler is the default.
func New(level slog.Level, w io.Writer, opts ...Option) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.json {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: goerrAttr,
		}))
	}

	handler := clog.New(
		clog.WithWriter(w),
		clog.WithLevel(level),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(false),
		clog.WithAttrHook(clog.GoerrHook),
	)
	return slog.New(handler)
}

// goerrAttr expands goerr values into a group so JSON logs keep them
func goerrAttr(groups []string, attr slog.Attr) slog.Attr {
	err, ok := attr.Value.Any().(error)
	if !ok {
		return attr
	}
	var gErr *goerr.Error
	if !errors.As(err, &gErr) {
		return slog.String(attr.Key, err.Error())
	}

	attrs := []any{slog.String("message", err.Error())}
	for k, v := range gErr.Values() {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.Group(attr.Key, attrs...)
}

// Default returns the default logger
func Default() *slog.Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *slog.Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = logger
}

// With returns a new context with the logger attached
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// From retrieves the logger from the context
// If no logger is found, it returns the default logger
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return Default()
}
