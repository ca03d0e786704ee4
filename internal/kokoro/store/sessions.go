package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CreateSession inserts a new session record.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	var ended sql.NullString
	if sess.EndedAt != nil {
		ended = sql.NullString{String: formatTime(*sess.EndedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, started_at, ended_at, message_count, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.SessionID, sess.UserID, formatTime(sess.StartedAt), ended, sess.MessageCount, sess.IsActive)
	return Wrap("create session", err)
}

// EndSession marks an active session closed. Ending an already closed
// session changes nothing and returns false.
func (s *Store) EndSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, is_active = 0
		WHERE session_id = ? AND is_active = 1
	`, formatTime(at), sessionID)
	if err != nil {
		return false, Wrap("end session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, Wrap("end session", err)
	}
	return n == 1, nil
}

const sessionColumns = `session_id, user_id, started_at, ended_at, message_count, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess    Session
		started string
		ended   sql.NullString
	)
	if err := row.Scan(&sess.SessionID, &sess.UserID, &started, &ended, &sess.MessageCount, &sess.IsActive); err != nil {
		return nil, err
	}
	t, err := parseTime(started)
	if err != nil {
		return nil, err
	}
	sess.StartedAt = t
	if ended.Valid {
		e, err := parseTime(ended.String)
		if err != nil {
			return nil, err
		}
		sess.EndedAt = &e
	}
	return &sess, nil
}

// GetSession returns ErrNotFound for an unknown id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Wrap("get session", err)
	}
	return sess, nil
}

// ListUserSessions returns the user's most recent sessions first.
func (s *Store) ListUserSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, Wrap("list sessions", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, Wrap("list sessions", err)
		}
		out = append(out, *sess)
	}
	return out, Wrap("list sessions", rows.Err())
}
