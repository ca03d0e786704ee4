// Package observability provides structured logging helpers for Kokoro.
//
// It wraps log/slog with trace ID propagation and secret redaction so that
// every log line emitted during a turn carries the trace context.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bdobrica/kokoro/common/redact"
	"github.com/bdobrica/kokoro/common/trace"
)

// ParseLevel maps a LOG_LEVEL string to a slog.Level. Unknown values map
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds a text or JSON handler writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup configures the global slog logger according to the provided level and
// format strings (e.g. level="info", format="json").
func Setup(level, format string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, level, format)))
}

// WithTrace returns a child logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}

// secrets holds values that must never appear in log output. It is
// populated once at startup from the loaded configuration.
var secrets []string

// RegisterSecrets adds values to the redaction list used by RedactErr.
func RegisterSecrets(values ...string) {
	for _, v := range values {
		if v != "" {
			secrets = append(secrets, v)
		}
	}
}

// RedactErr renders err with every registered secret replaced.
func RedactErr(err error) string {
	return redact.Error(err, secrets...)
}
