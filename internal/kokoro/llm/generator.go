// Package llm defines the text-generation collaborator used by every
// model-backed step of a companion turn: mood classification, reply
// generation, greetings, pattern analysis and habit descriptions.
//
// The interface is deliberately prompt-in, text-out. Prompt construction
// and reply parsing live with the callers.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrGeneration is matched by every failure returned from a Generator.
	ErrGeneration = errors.New("llm: generation failed")

	// ErrRateLimit is additionally matched when the provider answered 429.
	ErrRateLimit = errors.New("llm: rate limited")

	// ErrEmptyResponse is returned when the provider produced no text.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrUnavailable is returned by the offline generator.
	ErrUnavailable = errors.New("llm: no provider configured")
)

// Generator produces text for a prompt. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f(ctx, prompt).
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// GenerationError wraps a provider failure.
type GenerationError struct {
	// Op names the calling step, e.g. "sentiment" or "reply".
	Op string
	// StatusCode is the HTTP status returned by the provider, 0 if the
	// request never got a response.
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is reports ErrGeneration for every GenerationError and ErrRateLimit for
// 429 responses.
func (e *GenerationError) Is(target error) bool {
	switch target {
	case ErrGeneration:
		return true
	case ErrRateLimit:
		return e.StatusCode == 429
	}
	return false
}

// Offline returns a Generator that always fails with ErrUnavailable. It is
// used when no API key is configured so every model-backed step takes its
// fallback path.
func Offline() Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", &GenerationError{Op: "offline", Err: ErrUnavailable}
	})
}
