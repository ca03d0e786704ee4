package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
)

var (
	// ErrStorage is matched by every backend failure (see Error).
	ErrStorage = errors.New("store: storage unavailable")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned by CreateUser for a known user.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is wrapped when an optimistic write kept losing races.
	ErrConflict = errors.New("store: write conflict")
)

// Error wraps a backend failure with the operation that hit it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrStorage }

// Wrap returns nil for a nil err and an *Error otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Role of a persisted message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is the per-user profile.
type User struct {
	UserID        string            `json:"user_id" bson:"_id"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	LastActive    time.Time         `json:"last_active" bson:"last_active"`
	TotalSessions int               `json:"total_sessions" bson:"total_sessions"`
	TotalMessages int               `json:"total_messages" bson:"total_messages"`
	Preferences   map[string]string `json:"preferences" bson:"preferences"`
}

// Session is one conversation from start to end.
type Session struct {
	SessionID    string     `json:"session_id" bson:"_id"`
	UserID       string     `json:"user_id" bson:"user_id"`
	StartedAt    time.Time  `json:"started_at" bson:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	MessageCount int        `json:"message_count" bson:"message_count"`
	IsActive     bool       `json:"is_active" bson:"is_active"`
}

// Message is one persisted turn. Mood and score are set on user turns only.
type Message struct {
	MessageID      string    `json:"message_id" bson:"_id"`
	UserID         string    `json:"user_id" bson:"user_id"`
	SessionID      string    `json:"session_id" bson:"session_id"`
	Role           string    `json:"role" bson:"role"`
	Content        string    `json:"content" bson:"content"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
	MoodDetected   string    `json:"mood_detected,omitempty" bson:"mood_detected,omitempty"`
	SentimentScore *float64  `json:"sentiment_score,omitempty" bson:"sentiment_score,omitempty"`
}

// Gateway is everything the conversation layer needs from persistence.
// Both the SQLite Store and the MongoDB backend implement it.
type Gateway interface {
	analytics.Repository

	GetUser(ctx context.Context, userID string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// TouchUserSession increments total_sessions and sets last_active.
	TouchUserSession(ctx context.Context, userID string, at time.Time) error

	CreateSession(ctx context.Context, s *Session) error
	// EndSession closes an active session and reports whether it did.
	EndSession(ctx context.Context, sessionID string, at time.Time) (bool, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// ListUserSessions returns up to limit sessions, newest first.
	ListUserSessions(ctx context.Context, userID string, limit int) ([]Session, error)

	// SaveMessage stores m and bumps the session's message_count and the
	// user's total_messages.
	SaveMessage(ctx context.Context, m *Message) error
	// SessionMessages returns a session's messages, oldest first.
	SessionMessages(ctx context.Context, sessionID string) ([]Message, error)

	Ping(ctx context.Context) error
	Close() error
}
