// Package logger builds the zerolog loggers used by the binaries and carries
// request and job loggers through contexts.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// Production switches the output to JSON lines.
const Production = "production"

// Options selects how a logger writes.
type Options struct {
	// Service is added to every line as the "service" field when set.
	Service     string
	Environment string
	// Level is a zerolog level name; unknown names mean info.
	Level  string
	Writer io.Writer
}

// New creates a console logger at info level.
func New() zerolog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a logger for the given environment. Production
// loggers write JSON; everything else gets the console writer.
func NewWithOptions(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if !strings.EqualFold(opts.Environment, Production) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zctx := zerolog.New(w).Level(ParseLevel(opts.Level)).With().Timestamp().Caller()
	if opts.Service != "" {
		zctx = zctx.Str("service", opts.Service)
	}
	return zctx.Logger()
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	return FromContextOr(ctx, New())
}

// FromContextOr retrieves the logger from the context or returns fallback.
func FromContextOr(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return log
	}
	return fallback
}

// WithFields adds structured fields to a logger. Empty string values are
// skipped.
func WithFields(log zerolog.Logger, fields map[string]any) zerolog.Logger {
	zctx := log.With()
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		zctx = zctx.Interface(k, v)
	}
	return zctx.Logger()
}
