package store

import (
	"context"
	"database/sql"
)

// SaveMessage inserts m and bumps the session and user counters in one
// transaction.
func (s *Store) SaveMessage(ctx context.Context, m *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap("save message", err)
	}
	defer tx.Rollback()

	var moodDetected sql.NullString
	if m.MoodDetected != "" {
		moodDetected = sql.NullString{String: m.MoodDetected, Valid: true}
	}
	var score sql.NullFloat64
	if m.SentimentScore != nil {
		score = sql.NullFloat64{Float64: *m.SentimentScore, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (message_id, user_id, session_id, role, content, timestamp, mood_detected, sentiment_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.MessageID, m.UserID, m.SessionID, m.Role, m.Content, formatTime(m.Timestamp), moodDetected, score); err != nil {
		return Wrap("save message", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 1 WHERE session_id = ?`, m.SessionID); err != nil {
		return Wrap("save message: session counter", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET total_messages = total_messages + 1, last_active = ? WHERE user_id = ?`,
		formatTime(m.Timestamp), m.UserID); err != nil {
		return Wrap("save message: user counter", err)
	}
	return Wrap("save message", tx.Commit())
}

// SessionMessages returns every message of a session in arrival order.
func (s *Store) SessionMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, user_id, session_id, role, content, timestamp, mood_detected, sentiment_score
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp ASC, message_id ASC
	`, sessionID)
	if err != nil {
		return nil, Wrap("session messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m     Message
			ts    string
			md    sql.NullString
			score sql.NullFloat64
		)
		if err := rows.Scan(&m.MessageID, &m.UserID, &m.SessionID, &m.Role, &m.Content, &ts, &md, &score); err != nil {
			return nil, Wrap("session messages", err)
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, Wrap("session messages", err)
		}
		m.MoodDetected = md.String
		if score.Valid {
			v := score.Float64
			m.SentimentScore = &v
		}
		out = append(out, m)
	}
	return out, Wrap("session messages", rows.Err())
}
