package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/bdobrica/kokoro/common/trace"
	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/habits"
	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

// Deps are the collaborators a session drives. Store, Generator, Analyzer,
// Aggregator and Selector are required.
type Deps struct {
	Store      store.Gateway
	Generator  llm.Generator
	Analyzer   *mood.Analyzer
	Aggregator *analytics.Aggregator
	Selector   *habits.Selector
	Patterns   *mood.PatternAnalyzer
	// Feedback, when set, adds a personalised note to every reply prompt.
	// It costs a pattern and a feedback model call per turn.
	Feedback *mood.FeedbackWriter

	// Now defaults to time.Now.
	Now func() time.Time
}

// Config tunes prompt assembly and suggestions.
type Config struct {
	SystemPrompt    string
	MaxHistory      int
	ContextTokens   int
	SuggestionCount int
}

// ConversationSession owns one conversation. Its methods are safe for
// concurrent use; calls are serialised so one turn completes before the
// next starts.
type ConversationSession struct {
	mu      sync.Mutex
	deps    Deps
	cfg     Config
	builder ContextBuilder
	state   State
	// totalSessions is the profile counter after Start, used to personalise
	// habit descriptions.
	totalSessions int
}

// New returns a session in the NotStarted state.
func New(deps Deps, cfg Config) *ConversationSession {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.SuggestionCount <= 0 {
		cfg.SuggestionCount = habits.DefaultCount
	}
	return &ConversationSession{
		deps: deps,
		cfg:  cfg,
		builder: ContextBuilder{
			System:     cfg.SystemPrompt,
			MaxHistory: cfg.MaxHistory,
			MaxTokens:  cfg.ContextTokens,
		},
		state: State{Status: NotStarted},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *ConversationSession) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Status returns the current lifecycle status.
func (s *ConversationSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status
}

// Start opens a session for userID. Failures before the session record
// exists leave the session NotStarted; later storage failures are reported
// in Greeting.PersistenceErr.
func (s *ConversationSession) Start(ctx context.Context, userID string) (Greeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != NotStarted {
		return Greeting{}, ErrInvalidState
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Greeting{}, ErrEmptyUserID
	}
	ctx = trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("user_id", userID)
	now := s.deps.Now().UTC()

	profile, err := s.loadOrCreateUser(ctx, userID, now)
	if err != nil {
		return Greeting{}, fmt.Errorf("session: start: %w", err)
	}
	returning := profile.TotalSessions >= 1

	sess := &store.Session{SessionID: uuid.NewString(), UserID: userID, StartedAt: now, IsActive: true}
	if err := s.deps.Store.CreateSession(ctx, sess); err != nil {
		return Greeting{}, fmt.Errorf("session: start: %w", err)
	}

	s.state = State{
		Status:    Active,
		UserID:    userID,
		SessionID: sess.SessionID,
		StartedAt: now,
	}
	s.totalSessions = profile.TotalSessions + 1
	log = log.With("session_id", sess.SessionID)

	var perr error
	if err := s.deps.Store.TouchUserSession(ctx, userID, now); err != nil {
		log.Error("failed to update user session counter", "err", err)
		perr = errors.Join(perr, err)
	}
	if _, err := s.deps.Aggregator.RegisterSession(ctx, userID, analytics.DayOf(now)); err != nil {
		log.Error("failed to register session in daily analytics", "err", err)
		perr = errors.Join(perr, err)
	}

	text := CannedGreeting
	if returning {
		text = s.personalGreeting(ctx, profile)
	}
	if err := s.appendTurn(ctx, RoleAssistant, text, nil); err != nil {
		log.Error("failed to persist greeting", "err", err)
		perr = errors.Join(perr, err)
	}

	suggestions := s.suggest(ctx, mood.Neutral, 0.5, now)

	log.Info("session started", "returning", returning)
	return Greeting{
		SessionID:      sess.SessionID,
		Text:           text,
		Suggestions:    suggestions,
		Returning:      returning,
		PersistenceErr: perr,
	}, nil
}

func (s *ConversationSession) loadOrCreateUser(ctx context.Context, userID string, now time.Time) (*store.User, error) {
	u, err := s.deps.Store.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	u = &store.User{UserID: userID, CreatedAt: now, LastActive: now, Preferences: map[string]string{}}
	err = s.deps.Store.CreateUser(ctx, u)
	if errors.Is(err, store.ErrAlreadyExists) {
		return s.deps.Store.GetUser(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *ConversationSession) personalGreeting(ctx context.Context, profile *store.User) string {
	text, err := s.deps.Generator.Generate(ctx, GreetingPrompt(profile))
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			observability.WithTrace(ctx).Warn("personal greeting failed, using canned greeting", "err", observability.RedactErr(err))
		}
		return CannedGreeting
	}
	return text
}

// Send runs one turn. It returns ErrInvalidState unless the session is
// Active, and otherwise always produces a reply.
func (s *ConversationSession) Send(ctx context.Context, utterance string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != Active {
		return Reply{}, ErrInvalidState
	}
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := observability.WithTrace(ctx).With("user_id", s.state.UserID, "session_id", s.state.SessionID)
	now := s.deps.Now().UTC()

	rec := s.deps.Analyzer.Analyze(ctx, utterance)
	recCopy := rec.Clone()
	s.state.LastMood = &recCopy

	// Storage failures never replace the reply; they are joined into
	// PersistenceErr and the turn carries on.
	var perr error
	if err := s.appendTurn(ctx, RoleUser, utterance, &rec); err != nil {
		log.Error("failed to persist user message", "err", err)
		perr = errors.Join(perr, err)
	}
	if _, err := s.deps.Aggregator.Update(ctx, s.state.UserID, analytics.DayOf(now), rec); err != nil {
		log.Error("failed to update daily analytic", "err", err)
		perr = errors.Join(perr, err)
	}

	prompt := s.builder.Build(rec, s.feedback(ctx, rec, now), s.state.History)
	text, err := s.deps.Generator.Generate(ctx, prompt)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		log.Warn("reply generation failed, using fallback reply", "err", observability.RedactErr(err))
		return Reply{Text: FallbackReply, Fallback: true, PersistenceErr: perr}, nil
	}

	if err := s.appendTurn(ctx, RoleAssistant, text, nil); err != nil {
		log.Error("failed to persist assistant message", "err", err)
		perr = errors.Join(perr, err)
	}

	suggestions := s.suggest(ctx, rec.Mood, rec.Score, now)

	log.Info("turn completed",
		"mood", rec.Mood,
		"score", rec.Score,
		"suggestions", len(suggestions),
		"persistence_degraded", perr != nil,
	)
	return Reply{
		Text:           text,
		Sentiment:      &rec,
		Suggestions:    suggestions,
		PersistenceErr: perr,
	}, nil
}

// feedback returns the personalised note for rec, or "" when disabled.
// Must be called with mu held.
func (s *ConversationSession) feedback(ctx context.Context, rec mood.SentimentRecord, now time.Time) string {
	if s.deps.Feedback == nil {
		return ""
	}
	// Insights logs storage failures and falls back to the unavailable pattern.
	pattern, _ := Insights(ctx, s.deps.Store, s.deps.Patterns, s.state.UserID, now)
	return s.deps.Feedback.Write(ctx, mood.FeedbackInput{
		Mood:          rec.Mood,
		Score:         rec.Score,
		TotalSessions: s.totalSessions,
		Pattern:       pattern,
	})
}

// End closes an Active session. It is a no-op otherwise. A storage failure
// is returned and the session stays Active so End can be retried.
func (s *ConversationSession) End(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != Active {
		return nil
	}
	now := s.deps.Now().UTC()
	if _, err := s.deps.Store.EndSession(ctx, s.state.SessionID, now); err != nil {
		return fmt.Errorf("session: end: %w", err)
	}
	s.state.Status = Ended
	s.state.EndedAt = &now
	observability.WithTrace(ctx).Info("session ended",
		"user_id", s.state.UserID,
		"session_id", s.state.SessionID,
		"messages", s.state.MessageCount,
	)
	return nil
}

// Weekly returns the weekly report for the bound user.
func (s *ConversationSession) Weekly(ctx context.Context) (analytics.Report, error) {
	s.mu.Lock()
	userID := s.state.UserID
	s.mu.Unlock()
	if userID == "" {
		return analytics.Report{}, ErrInvalidState
	}
	return WeeklyReport(ctx, s.deps.Aggregator, userID, s.deps.Now())
}

// Insights runs pattern analysis over the bound user's recent messages.
func (s *ConversationSession) Insights(ctx context.Context) (mood.Pattern, error) {
	s.mu.Lock()
	userID := s.state.UserID
	s.mu.Unlock()
	if userID == "" {
		return mood.Pattern{}, ErrInvalidState
	}
	return Insights(ctx, s.deps.Store, s.deps.Patterns, userID, s.deps.Now())
}

// Suggest recomputes suggestions for the last detected mood, or the neutral
// baseline before any utterance.
func (s *ConversationSession) Suggest(ctx context.Context) ([]habits.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != Active {
		return nil, ErrInvalidState
	}
	m, score := mood.Neutral, 0.5
	if s.state.LastMood != nil {
		m, score = s.state.LastMood.Mood, s.state.LastMood.Score
	}
	return s.suggest(ctx, m, score, s.deps.Now()), nil
}

func (s *ConversationSession) suggest(ctx context.Context, m mood.Tag, score float64, now time.Time) []habits.Suggestion {
	return s.deps.Selector.For(ctx, m, score, habits.Request{
		Count:         s.cfg.SuggestionCount,
		UserID:        s.state.UserID,
		Day:           string(analytics.DayOf(now)),
		TotalSessions: s.totalSessions,
	})
}

// appendTurn records a turn in history and persists it. The history entry is
// kept even when the write fails. Must be called with mu held.
func (s *ConversationSession) appendTurn(ctx context.Context, role, content string, rec *mood.SentimentRecord) error {
	now := s.deps.Now().UTC()
	s.state.History = append(s.state.History, Turn{Role: role, Content: content, Timestamp: now})
	s.state.MessageCount = len(s.state.History)

	msg := &store.Message{
		MessageID: ulid.Make().String(),
		UserID:    s.state.UserID,
		SessionID: s.state.SessionID,
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	if rec != nil {
		score := rec.Score
		msg.MoodDetected = string(rec.Mood)
		msg.SentimentScore = &score
	}
	return s.deps.Store.SaveMessage(ctx, msg)
}
