package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
)

// Apply runs fn against the (userID, day) analytic inside a transaction.
func (s *Store) Apply(ctx context.Context, userID string, day analytics.Day, fn func(a *analytics.DailyAnalytic, exists bool) error) (analytics.DailyAnalytic, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return analytics.DailyAnalytic{}, Wrap("apply analytic", err)
	}
	defer tx.Rollback()

	cur := analytics.New(userID, day)
	var dist string
	err = tx.QueryRowContext(ctx, `
		SELECT mood_distribution, average_sentiment, total_messages, session_count
		FROM analytics WHERE user_id = ? AND date = ?
	`, userID, string(day)).Scan(&dist, &cur.AverageSentiment, &cur.TotalMessages, &cur.SessionCount)
	exists := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
	case err != nil:
		return analytics.DailyAnalytic{}, Wrap("apply analytic: read", err)
	default:
		if err := json.Unmarshal([]byte(dist), &cur.MoodDistribution); err != nil {
			return analytics.DailyAnalytic{}, Wrap("apply analytic: decode distribution", err)
		}
		if cur.MoodDistribution == nil {
			cur.MoodDistribution = map[mood.Tag]int{}
		}
	}

	if err := fn(&cur, exists); err != nil {
		return analytics.DailyAnalytic{}, err
	}

	raw, err := json.Marshal(cur.MoodDistribution)
	if err != nil {
		return analytics.DailyAnalytic{}, Wrap("apply analytic: encode distribution", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO analytics (user_id, date, mood_distribution, average_sentiment, total_messages, session_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			mood_distribution = excluded.mood_distribution,
			average_sentiment = excluded.average_sentiment,
			total_messages = excluded.total_messages,
			session_count = excluded.session_count
	`, userID, string(day), string(raw), cur.AverageSentiment, cur.TotalMessages, cur.SessionCount); err != nil {
		return analytics.DailyAnalytic{}, Wrap("apply analytic: write", err)
	}
	if err := tx.Commit(); err != nil {
		return analytics.DailyAnalytic{}, Wrap("apply analytic: commit", err)
	}
	return cur, nil
}

// List returns the user's analytics with from <= date <= to, oldest first.
func (s *Store) List(ctx context.Context, userID string, from, to analytics.Day) ([]analytics.DailyAnalytic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, mood_distribution, average_sentiment, total_messages, session_count
		FROM analytics
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, userID, string(from), string(to))
	if err != nil {
		return nil, Wrap("list analytics", err)
	}
	defer rows.Close()

	var out []analytics.DailyAnalytic
	for rows.Next() {
		a := analytics.DailyAnalytic{UserID: userID}
		var date, dist string
		if err := rows.Scan(&date, &dist, &a.AverageSentiment, &a.TotalMessages, &a.SessionCount); err != nil {
			return nil, Wrap("list analytics", err)
		}
		a.Date = analytics.Day(date)
		if err := json.Unmarshal([]byte(dist), &a.MoodDistribution); err != nil {
			return nil, Wrap("list analytics: decode distribution", err)
		}
		if a.MoodDistribution == nil {
			a.MoodDistribution = map[mood.Tag]int{}
		}
		out = append(out, a)
	}
	return out, Wrap("list analytics", rows.Err())
}
