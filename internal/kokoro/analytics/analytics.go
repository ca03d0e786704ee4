// Package analytics folds per-utterance sentiment into one running record
// per user and UTC day, and summarises a week of those records.
package analytics

import (
	"fmt"
	"maps"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/mood"
)

// DayLayout is the calendar-day key format.
const DayLayout = time.DateOnly

// Day is a UTC calendar day in YYYY-MM-DD form.
type Day string

// DayOf returns the UTC day containing t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(DayLayout))
}

// ParseDay validates s as a YYYY-MM-DD day.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(DayLayout, s); err != nil {
		return "", fmt.Errorf("analytics: invalid day %q: %w", s, err)
	}
	return Day(s), nil
}

// AddDays returns the day n days after d (n may be negative). An invalid d
// is returned unchanged.
func (d Day) AddDays(n int) Day {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return d
	}
	return Day(t.AddDate(0, 0, n).Format(DayLayout))
}

// DailyAnalytic is the running aggregate for one (user, day).
//
// Invariants kept by Fold: AverageSentiment is the arithmetic mean of every
// folded score and the distribution values sum to TotalMessages.
type DailyAnalytic struct {
	UserID           string           `json:"user_id" bson:"user_id"`
	Date             Day              `json:"date" bson:"date"`
	MoodDistribution map[mood.Tag]int `json:"mood_distribution" bson:"mood_distribution"`
	AverageSentiment float64          `json:"average_sentiment" bson:"average_sentiment"`
	TotalMessages    int              `json:"total_messages" bson:"total_messages"`
	SessionCount     int              `json:"session_count" bson:"session_count"`
}

// New returns an empty analytic for (userID, day).
func New(userID string, day Day) DailyAnalytic {
	return DailyAnalytic{UserID: userID, Date: day, MoodDistribution: map[mood.Tag]int{}}
}

// Clone returns a deep copy.
func (a DailyAnalytic) Clone() DailyAnalytic {
	cp := a
	cp.MoodDistribution = maps.Clone(a.MoodDistribution)
	if cp.MoodDistribution == nil {
		cp.MoodDistribution = map[mood.Tag]int{}
	}
	return cp
}

// Fold adds one sentiment record. Moods outside the known set are counted
// as neutral.
func Fold(a *DailyAnalytic, rec mood.SentimentRecord) {
	if a.MoodDistribution == nil {
		a.MoodDistribution = map[mood.Tag]int{}
	}
	a.TotalMessages++
	n := float64(a.TotalMessages)
	a.AverageSentiment = (a.AverageSentiment*(n-1) + rec.Score) / n
	a.MoodDistribution[rec.Mood.Normalize()]++
}
