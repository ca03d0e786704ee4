package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// GetUser returns ErrNotFound for an unknown user.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	var (
		u                     User
		createdAt, lastActive string
		prefs                 string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, last_active, total_sessions, total_messages, preferences
		FROM users WHERE user_id = ?
	`, userID).Scan(&u.UserID, &createdAt, &lastActive, &u.TotalSessions, &u.TotalMessages, &prefs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Wrap("get user", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, Wrap("get user", err)
	}
	if u.LastActive, err = parseTime(lastActive); err != nil {
		return nil, Wrap("get user", err)
	}
	if err := json.Unmarshal([]byte(prefs), &u.Preferences); err != nil {
		return nil, Wrap("get user preferences", err)
	}
	if u.Preferences == nil {
		u.Preferences = map[string]string{}
	}
	return &u, nil
}

// CreateUser inserts u and returns ErrAlreadyExists if the id is taken.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	prefs := u.Preferences
	if prefs == nil {
		prefs = map[string]string{}
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return Wrap("create user", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, created_at, last_active, total_sessions, total_messages, preferences)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, u.UserID, formatTime(u.CreatedAt), formatTime(u.LastActive), u.TotalSessions, u.TotalMessages, string(raw))
	if err != nil {
		return Wrap("create user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// TouchUserSession counts a new session and marks the user active.
func (s *Store) TouchUserSession(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET total_sessions = total_sessions + 1, last_active = ?
		WHERE user_id = ?
	`, formatTime(at), userID)
	if err != nil {
		return Wrap("touch user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
