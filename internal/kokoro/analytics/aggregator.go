package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/mood"
)

// WeekDays is the window used by Weekly.
const WeekDays = 7

// Repository persists analytics.
//
// Apply loads the record for (userID, day), or a fresh New(userID, day) with
// exists=false, calls fn on it and stores the result atomically. fn may be
// invoked more than once when the backend retries a conflicting write, so it
// must only depend on its argument.
type Repository interface {
	Apply(ctx context.Context, userID string, day Day, fn func(a *DailyAnalytic, exists bool) error) (DailyAnalytic, error)
	List(ctx context.Context, userID string, from, to Day) ([]DailyAnalytic, error)
}

// Aggregator applies sentiment updates and session registrations.
type Aggregator struct {
	repo  Repository
	locks *keyedMutex
}

// NewAggregator returns an Aggregator writing through repo.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo, locks: newKeyedMutex()}
}

// Update folds rec into the (userID, day) analytic. A new record starts with
// one message and one session.
func (a *Aggregator) Update(ctx context.Context, userID string, day Day, rec mood.SentimentRecord) (DailyAnalytic, error) {
	unlock := a.locks.Lock(userID + "|" + string(day))
	defer unlock()

	out, err := a.repo.Apply(ctx, userID, day, func(d *DailyAnalytic, exists bool) error {
		if !exists {
			d.SessionCount = 1
		}
		Fold(d, rec)
		return nil
	})
	if err != nil {
		return DailyAnalytic{}, fmt.Errorf("analytics: update %s/%s: %w", userID, day, err)
	}
	slog.Debug("analytic updated",
		"user_id", userID,
		"date", day,
		"total_messages", out.TotalMessages,
		"average_sentiment", out.AverageSentiment,
	)
	return out, nil
}

// RegisterSession counts a new session for (userID, day), creating an empty
// record when none exists.
func (a *Aggregator) RegisterSession(ctx context.Context, userID string, day Day) (DailyAnalytic, error) {
	unlock := a.locks.Lock(userID + "|" + string(day))
	defer unlock()

	out, err := a.repo.Apply(ctx, userID, day, func(d *DailyAnalytic, exists bool) error {
		d.SessionCount++
		return nil
	})
	if err != nil {
		return DailyAnalytic{}, fmt.Errorf("analytics: register session %s/%s: %w", userID, day, err)
	}
	return out, nil
}

// History returns up to days analytics ending on now's day, oldest first.
func (a *Aggregator) History(ctx context.Context, userID string, days int, now time.Time) ([]DailyAnalytic, error) {
	if days <= 0 {
		days = WeekDays
	}
	to := DayOf(now)
	from := to.AddDays(-(days - 1))
	list, err := a.repo.List(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("analytics: history %s: %w", userID, err)
	}
	return list, nil
}

// Weekly builds the report for the seven days ending on now's day.
func (a *Aggregator) Weekly(ctx context.Context, userID string, now time.Time) (Report, error) {
	history, err := a.History(ctx, userID, WeekDays, now)
	if err != nil {
		return Report{}, err
	}
	return WeeklyReport(history), nil
}
