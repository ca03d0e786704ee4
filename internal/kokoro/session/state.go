// Package session runs one user's conversation: greeting, the per-utterance
// sentiment/reply pipeline and closing the session record.
package session

import (
	"errors"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/habits"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
)

// ErrInvalidState is returned when an operation is not allowed in the
// session's current status.
var ErrInvalidState = errors.New("session: invalid state")

// ErrEmptyUserID is returned by Start for a blank user id.
var ErrEmptyUserID = errors.New("session: empty user id")

// Status is the lifecycle position of a ConversationSession.
type Status string

const (
	NotStarted Status = "not_started"
	Active     Status = "active"
	Ended      Status = "ended"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is everything a ConversationSession owns. Snapshot hands out deep
// copies; MessageCount always equals len(History).
type State struct {
	Status       Status                `json:"status"`
	UserID       string                `json:"user_id"`
	SessionID    string                `json:"session_id"`
	History      []Turn                `json:"history"`
	StartedAt    time.Time             `json:"started_at"`
	EndedAt      *time.Time            `json:"ended_at,omitempty"`
	MessageCount int                   `json:"message_count"`
	LastMood     *mood.SentimentRecord `json:"last_mood,omitempty"`
}

func (s State) clone() State {
	cp := s
	cp.History = append([]Turn(nil), s.History...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	if s.LastMood != nil {
		m := s.LastMood.Clone()
		cp.LastMood = &m
	}
	return cp
}

// Greeting is what Start returns.
type Greeting struct {
	SessionID   string              `json:"session_id"`
	Text        string              `json:"greeting"`
	Suggestions []habits.Suggestion `json:"suggestions"`
	Returning   bool                `json:"returning"`
	// PersistenceErr collects storage failures that did not stop the start.
	PersistenceErr error `json:"-"`
}

// Reply is what Send returns.
type Reply struct {
	Text        string                `json:"reply"`
	Sentiment   *mood.SentimentRecord `json:"sentiment,omitempty"`
	Suggestions []habits.Suggestion   `json:"suggestions"`
	// Fallback is true when the model could not produce a reply.
	Fallback bool `json:"fallback"`
	// PersistenceErr joins every storage failure hit during the turn.
	PersistenceErr error `json:"-"`
}
