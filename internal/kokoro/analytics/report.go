package analytics

import "fmt"

// Trend classifies the direction of average sentiment across a window.
type Trend string

const (
	Improving Trend = "improving"
	Declining Trend = "declining"
	Stable    Trend = "stable"
	Unknown   Trend = "unknown"
)

// trendThreshold is the minimum sentiment change that counts as movement.
const trendThreshold = 0.1

var recommendations = map[Trend][]string{
	Improving: {
		"Keep up the great work!",
		"Consider adding more challenging wellness activities",
		"Share your positive progress with others",
	},
	Declining: {
		"Be gentle with yourself during difficult times",
		"Consider reaching out to a mental health professional",
		"Focus on small, manageable self-care activities",
	},
	Stable: {
		"Try introducing new wellness activities",
		"Consider tracking specific mood triggers",
		"Explore different coping strategies",
	},
}

// Report is the weekly summary shown to a user.
type Report struct {
	Summary          string   `json:"summary"`
	Trend            Trend    `json:"trend"`
	Recommendations  []string `json:"recommendations"`
	AverageSentiment float64  `json:"average_sentiment"`
	TotalSessions    int      `json:"total_sessions"`
	TotalMessages    int      `json:"total_messages"`
	Days             int      `json:"days"`
}

// NoDataReport is returned for an empty history.
func NoDataReport() Report {
	return Report{
		Summary:         "No data available for this week",
		Trend:           Unknown,
		Recommendations: []string{"Start tracking your mood to get personalized insights"},
	}
}

// UnavailableReport is shown when history could not be loaded.
func UnavailableReport() Report {
	return Report{
		Summary:         "Unable to generate report at this time",
		Trend:           Unknown,
		Recommendations: []string{"Continue using the app for better insights"},
	}
}

// ClassifyTrend compares the last entry with the first. Fewer than two
// entries are always stable.
func ClassifyTrend(history []DailyAnalytic) Trend {
	if len(history) < 2 {
		return Stable
	}
	delta := history[len(history)-1].AverageSentiment - history[0].AverageSentiment
	switch {
	case delta > trendThreshold:
		return Improving
	case delta < -trendThreshold:
		return Declining
	default:
		return Stable
	}
}

// WeeklyReport summarises history, which must be ordered oldest first.
// Days with sessions but no messages add to TotalSessions only; they carry
// no sentiment and are left out of the average and the trend.
func WeeklyReport(history []DailyAnalytic) Report {
	sessions := 0
	scored := make([]DailyAnalytic, 0, len(history))
	for _, a := range history {
		sessions += a.SessionCount
		if a.TotalMessages > 0 {
			scored = append(scored, a)
		}
	}
	if len(scored) == 0 {
		r := NoDataReport()
		r.TotalSessions = sessions
		return r
	}

	var sum float64
	r := Report{Days: len(scored), TotalSessions: sessions}
	for _, a := range scored {
		sum += a.AverageSentiment
		r.TotalMessages += a.TotalMessages
	}
	r.AverageSentiment = sum / float64(len(scored))
	r.Trend = ClassifyTrend(scored)
	r.Summary = fmt.Sprintf("Your average mood this week was %.2f/1.0", r.AverageSentiment)
	r.Recommendations = append([]string{}, recommendations[r.Trend]...)
	return r
}
