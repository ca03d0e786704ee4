package session

import (
	"context"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

const (
	insightSessions = 20
	insightWindow   = 7 * 24 * time.Hour
)

// WeeklyReport loads the user's week. On a storage failure it returns the
// "unable to generate" report together with the error.
func WeeklyReport(ctx context.Context, agg *analytics.Aggregator, userID string, now time.Time) (analytics.Report, error) {
	r, err := agg.Weekly(ctx, userID, now)
	if err != nil {
		observability.WithTrace(ctx).Error("weekly report failed", "user_id", userID, "err", err)
		return analytics.UnavailableReport(), err
	}
	return r, nil
}

// Insights collects user messages from the last 20 sessions started within
// seven days of now and asks pa for a pattern. Storage failures yield the
// unavailable pattern together with the error.
func Insights(ctx context.Context, gw store.Gateway, pa *mood.PatternAnalyzer, userID string, now time.Time) (mood.Pattern, error) {
	if pa == nil {
		return mood.UnavailablePattern(), nil
	}
	sessions, err := gw.ListUserSessions(ctx, userID, insightSessions)
	if err != nil {
		observability.WithTrace(ctx).Error("insights: list sessions failed", "user_id", userID, "err", err)
		return mood.UnavailablePattern(), err
	}

	cutoff := now.Add(-insightWindow)
	var texts []string
	// Sessions come newest first; walk them oldest first.
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].StartedAt.Before(cutoff) {
			continue
		}
		msgs, err := gw.SessionMessages(ctx, sessions[i].SessionID)
		if err != nil {
			observability.WithTrace(ctx).Error("insights: load messages failed", "session_id", sessions[i].SessionID, "err", err)
			return mood.UnavailablePattern(), err
		}
		for _, m := range msgs {
			if m.Role == store.RoleUser {
				texts = append(texts, m.Content)
			}
		}
	}
	return pa.Analyze(ctx, texts), nil
}
