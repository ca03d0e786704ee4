package habits

import (
	"reflect"
	"testing"

	"github.com/bdobrica/kokoro/internal/kokoro/mood"
)

func TestSelectCategories(t *testing.T) {
	tests := []struct {
		mood  mood.Tag
		score float64
		want  []Category
	}{
		{mood.Stressed, 0.5, []Category{StressRelief, AnxietyManagement}},
		{mood.Sad, 0.2, []Category{DepressionSupport, MoodBoost}},
		{mood.Anxious, 0.25, []Category{DepressionSupport, StressRelief, AnxietyManagement}},
		{mood.Happy, 0.9, []Category{MoodBoost, GeneralWellness}},
		{mood.Tired, 0.5, []Category{GeneralWellness, StressRelief}},
		{mood.Neutral, 0.5, []Category{GeneralWellness, MoodBoost}},
		{mood.Tag("melancholic"), 0.1, []Category{DepressionSupport, GeneralWellness, MoodBoost}},
		{mood.VerySad, 0.3, []Category{MoodBoost, DepressionSupport}},
		{mood.Excited, 0.7, []Category{GeneralWellness, MoodBoost}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mood), func(t *testing.T) {
			if got := SelectCategories(tt.mood, tt.score); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SelectCategories(%s, %v) = %v, want %v", tt.mood, tt.score, got, tt.want)
			}
		})
	}
}

func TestDifficulty(t *testing.T) {
	if Difficulty(0.29) != "easy" || Difficulty(0.3) != "medium" || Difficulty(0.95) != "medium" {
		t.Error("difficulty thresholds wrong")
	}
}
