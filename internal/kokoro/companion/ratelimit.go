package companion

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the number of messages a user may send per minute
	// when no explicit limit is configured.
	DefaultRateLimit = 20

	defaultRateLimitWindow = time.Minute
)

// RateLimitMessage is the reply sent instead of running the pipeline when a
// user is over their quota.
const RateLimitMessage = "You're sending messages faster than I can keep up with. Let's slow down for a moment, then tell me more."

// RateLimiter enforces a per-user sliding-window limit. It keeps the
// timestamps seen within the window for each user and prunes stale entries
// on every call. It is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string][]time.Time
}

// NewRateLimiter returns a limiter allowing limit calls per window.
// Non-positive values fall back to 20 per minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string][]time.Time),
	}
}

// Allow reports whether userID may send another message and records it.
func (r *RateLimiter) Allow(userID string) bool {
	return r.allowAt(userID, time.Now())
}

func (r *RateLimiter) allowAt(userID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	valid := r.prune(userID, now)
	if len(valid) >= r.limit {
		r.counters[userID] = valid
		return false
	}
	r.counters[userID] = append(valid, now)
	return true
}

// Remaining returns how many more messages userID may send in the current
// window.
func (r *RateLimiter) Remaining(userID string) int {
	return r.remainingAt(userID, time.Now())
}

func (r *RateLimiter) remainingAt(userID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	valid := r.prune(userID, now)
	if len(valid) == 0 {
		delete(r.counters, userID)
	} else {
		r.counters[userID] = valid
	}
	return max(r.limit-len(valid), 0)
}

// prune drops timestamps outside the window. Must be called with mu held.
func (r *RateLimiter) prune(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing := r.counters[userID]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
