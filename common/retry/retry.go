// Package retry runs an operation again with exponential backoff until it
// succeeds, fails permanently, or the context ends.
//
//	err := retry.Do(ctx, retry.Policy{Attempts: 5}, func(ctx context.Context) error {
//	    return client.Ping(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls how often and how long Do waits.
type Policy struct {
	// Attempts includes the first call. Values below 1 mean a single call.
	Attempts int
	// Base is the wait after the first failure; it doubles up to Max.
	Base time.Duration
	Max  time.Duration
	// Name labels debug logs.
	Name string
}

// Default suits start-up connections to local services.
var Default = Policy{Attempts: 5, Base: 250 * time.Millisecond, Max: 5 * time.Second}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it returns nil, returns a Permanent error, attempts run
// out, or ctx is done. The last error from fn is returned, joined with the
// context error when the context stopped the loop.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	wait := p.Base
	if wait <= 0 {
		wait = Default.Base
	}
	ceiling := p.Max
	if ceiling <= 0 {
		ceiling = Default.Max
	}

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
		if attempt >= attempts {
			return last
		}

		slog.Debug("retrying", "op", p.Name, "attempt", attempt, "of", attempts, "wait", wait, "err", last)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(last, ctx.Err())
		case <-timer.C:
		}
		wait = min(wait*2, ceiling)
	}
}
