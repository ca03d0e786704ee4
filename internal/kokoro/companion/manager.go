// Package companion keeps the live conversation sessions of every channel a
// user can reach the companion through.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/habits"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/session"
)

// ErrUnknownSession is returned for a channel key with no live session.
var ErrUnknownSession = errors.New("companion: unknown session")

// DefaultCooldown is the idle time after which a session is ended by Reap.
const DefaultCooldown = 30 * time.Minute

// Channel key prefixes.
const (
	ChannelMatrix = "matrix"
	ChannelAPI    = "api"
	ChannelWS     = "ws"
)

// Key builds a registry key such as "matrix:!room|@alice".
func Key(channel string, parts ...string) string {
	return channel + ":" + strings.Join(parts, "|")
}

// Config tunes the manager.
type Config struct {
	// Cooldown is the idle time before Reap ends a session. Default 30m.
	Cooldown time.Duration
	// RateLimit is messages per user per minute. Default 20.
	RateLimit int
	Session   session.Config
}

// Result is the outcome of Send.
type Result struct {
	// Greeting is set when Send had to start the session first.
	Greeting    *session.Greeting
	Reply       session.Reply
	RateLimited bool
}

type entry struct {
	sess     *session.ConversationSession
	lastUsed time.Time
}

// Manager maps channel keys to sessions. Its lock guards only the registry;
// each session serialises its own turns.
type Manager struct {
	mu      sync.Mutex
	deps    session.Deps
	cfg     Config
	limiter *RateLimiter
	entries map[string]*entry
	logger  *slog.Logger
}

// NewManager returns a manager building sessions from deps.
func NewManager(deps session.Deps, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, 0),
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Start ends any session already on key and starts a new one for userID.
func (m *Manager) Start(ctx context.Context, key, userID string) (session.Greeting, error) {
	m.mu.Lock()
	old := m.entries[key]
	e := m.newEntryLocked(key)
	m.mu.Unlock()

	if old != nil {
		if err := old.sess.End(ctx); err != nil {
			m.logger.Warn("companion: failed to end replaced session", "key", key, "err", err)
		}
	}

	g, err := e.sess.Start(ctx, userID)
	if err != nil {
		m.remove(key, e)
		return session.Greeting{}, err
	}
	return g, nil
}

// Open starts a session registered under the API channel key derived from
// its new session id.
func (m *Manager) Open(ctx context.Context, userID string) (session.Greeting, error) {
	sess := session.New(m.deps, m.cfg.Session)
	g, err := sess.Start(ctx, userID)
	if err != nil {
		return session.Greeting{}, err
	}
	m.mu.Lock()
	m.entries[Key(ChannelAPI, g.SessionID)] = &entry{sess: sess, lastUsed: m.deps.Now()}
	m.mu.Unlock()
	return g, nil
}

// Send runs one turn on key, starting a session for userID first when none
// is live. Users over the rate limit get RateLimitMessage without a turn.
func (m *Manager) Send(ctx context.Context, key, userID, text string) (Result, error) {
	if !m.limiter.Allow(userID) {
		return rateLimited(userID, m.logger), nil
	}

	var res Result
	e := m.acquire(key)
	if e.sess.Status() == session.NotStarted {
		g, err := e.sess.Start(ctx, userID)
		switch {
		case err == nil:
			res.Greeting = &g
		case errors.Is(err, session.ErrInvalidState):
			// Started by a concurrent call on the same key.
		default:
			m.remove(key, e)
			return Result{}, err
		}
	}

	r, err := e.sess.Send(ctx, text)
	if err != nil {
		return Result{}, err
	}
	res.Reply = r
	return res, nil
}

// Message runs one turn on an existing session.
func (m *Manager) Message(ctx context.Context, key, text string) (Result, error) {
	e, err := m.lookup(key)
	if err != nil {
		return Result{}, err
	}
	userID := e.sess.Snapshot().UserID
	if !m.limiter.Allow(userID) {
		return rateLimited(userID, m.logger), nil
	}
	r, err := e.sess.Send(ctx, text)
	if err != nil {
		return Result{}, err
	}
	return Result{Reply: r}, nil
}

func rateLimited(userID string, logger *slog.Logger) Result {
	logger.Warn("companion: rate limit exceeded", "user_id", userID)
	return Result{Reply: session.Reply{Text: RateLimitMessage}, RateLimited: true}
}

// End ends the session on key and forgets it. It reports whether a session
// was live. On a storage failure the session stays registered.
func (m *Manager) End(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	e := m.entries[key]
	m.mu.Unlock()
	if e == nil {
		return false, nil
	}
	if err := e.sess.End(ctx); err != nil {
		return true, err
	}
	m.remove(key, e)
	return true, nil
}

// Snapshot returns the state of the session on key.
func (m *Manager) Snapshot(key string) (session.State, error) {
	e, err := m.lookup(key)
	if err != nil {
		return session.State{}, err
	}
	return e.sess.Snapshot(), nil
}

// Suggest recomputes suggestions for the session on key.
func (m *Manager) Suggest(ctx context.Context, key string) ([]habits.Suggestion, error) {
	e, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.sess.Suggest(ctx)
}

// Weekly returns the weekly report for userID.
func (m *Manager) Weekly(ctx context.Context, userID string) (analytics.Report, error) {
	return session.WeeklyReport(ctx, m.deps.Aggregator, userID, m.deps.Now())
}

// Insights runs pattern analysis over userID's recent messages.
func (m *Manager) Insights(ctx context.Context, userID string) (mood.Pattern, error) {
	return session.Insights(ctx, m.deps.Store, m.deps.Patterns, userID, m.deps.Now())
}

// History returns userID's daily analytics for the last days days.
func (m *Manager) History(ctx context.Context, userID string, days int) ([]analytics.DailyAnalytic, error) {
	h, err := m.deps.Aggregator.History(ctx, userID, days, m.deps.Now())
	if err != nil {
		return nil, fmt.Errorf("companion: history: %w", err)
	}
	return h, nil
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close ends every registered session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for key, e := range entries {
		if err := e.sess.End(ctx); err != nil {
			m.logger.Warn("companion: failed to end session on shutdown", "key", key, "err", err)
		}
	}
}

func (m *Manager) acquire(key string) *entry {
	m.mu.Lock()
	e := m.entries[key]
	if e != nil {
		e.lastUsed = m.deps.Now()
	}
	m.mu.Unlock()

	// Status waits for any running turn, so it is read outside mu.
	if e != nil && e.sess.Status() != session.Ended {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.entries[key]; cur != nil && cur != e {
		return cur
	}
	return m.newEntryLocked(key)
}

func (m *Manager) lookup(key string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	if e == nil {
		return nil, ErrUnknownSession
	}
	e.lastUsed = m.deps.Now()
	return e, nil
}

// newEntryLocked must be called with mu held.
func (m *Manager) newEntryLocked(key string) *entry {
	e := &entry{sess: session.New(m.deps, m.cfg.Session), lastUsed: m.deps.Now()}
	m.entries[key] = e
	return e
}

// remove deletes key only if it still maps to e.
func (m *Manager) remove(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[key] == e {
		delete(m.entries, key)
	}
}
