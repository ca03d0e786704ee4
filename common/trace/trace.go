// Package trace provides turn IDs for correlating every log line emitted
// while one utterance moves through the companion pipeline.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

type traceKey struct{}

// GenerateID returns a new random trace ID prefixed with "t_".
func GenerateID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "t_" + hex.EncodeToString(b)
}

// WithTraceID returns a child context carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// Ensure returns ctx unchanged when it already carries a trace ID, otherwise
// a child context with a freshly generated one.
func Ensure(ctx context.Context) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateID())
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
