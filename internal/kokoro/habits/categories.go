package habits

import "github.com/bdobrica/kokoro/internal/kokoro/mood"

const (
	lowScore  = 0.3
	highScore = 0.7
)

// baseCategories returns the mood table entry. Unknown moods use the
// default row.
func baseCategories(m mood.Tag) []Category {
	switch m {
	case mood.Stressed, mood.Anxious:
		return []Category{StressRelief, AnxietyManagement}
	case mood.Sad, mood.VerySad:
		return []Category{MoodBoost, DepressionSupport}
	case mood.Happy, mood.VeryHappy, mood.Excited:
		return []Category{GeneralWellness, MoodBoost}
	case mood.Tired:
		return []Category{GeneralWellness, StressRelief}
	default:
		return []Category{GeneralWellness, MoodBoost}
	}
}

// SelectCategories returns the categories for a mood and score. A score
// below 0.3 prepends depression_support, above 0.7 prepends mood_boost.
// Repeats are removed keeping the first position.
func SelectCategories(m mood.Tag, score float64) []Category {
	cats := baseCategories(m)
	switch {
	case score < lowScore:
		cats = append([]Category{DepressionSupport}, cats...)
	case score > highScore:
		cats = append([]Category{MoodBoost}, cats...)
	}

	seen := make(map[Category]bool, len(cats))
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Difficulty is easy below the low-score threshold and medium otherwise.
func Difficulty(score float64) string {
	if score < lowScore {
		return "easy"
	}
	return "medium"
}
