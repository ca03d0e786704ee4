package mood

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	moodLabel      = "MOOD:"
	sentimentLabel = "SENTIMENT:"
	intensityLabel = "INTENSITY:"
	keywordsLabel  = "KEYWORDS:"
)

var (
	errMissingMood      = errors.New("missing MOOD line")
	errMissingSentiment = errors.New("missing SENTIMENT line")
)

// ParseError describes a model reply that was well formed text but did not
// carry the required fields.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("mood: parse %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("mood: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads the labelled-line reply format. Labels are matched
// case-sensitively at the start of a line; values are trimmed and MOOD and
// INTENSITY are lower-cased. MOOD and a finite SENTIMENT are required. A
// missing INTENSITY reads as low and scores outside [0,1] are clamped.
func Parse(raw string) (SentimentRecord, error) {
	rec := SentimentRecord{Intensity: Low, Keywords: []string{}}
	var haveMood, haveScore bool

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, moodLabel):
			rec.Mood = Tag(strings.ToLower(value(line, moodLabel)))
			haveMood = rec.Mood != ""
		case strings.HasPrefix(line, sentimentLabel):
			v := value(line, sentimentLabel)
			score, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Fallback(), &ParseError{Field: "SENTIMENT", Value: v, Err: err}
			}
			if math.IsNaN(score) || math.IsInf(score, 0) {
				return Fallback(), &ParseError{Field: "SENTIMENT", Value: v, Err: errors.New("not a finite number")}
			}
			rec.Score = min(max(score, 0), 1)
			haveScore = true
		case strings.HasPrefix(line, intensityLabel):
			if v := strings.ToLower(value(line, intensityLabel)); v != "" {
				rec.Intensity = Intensity(v)
			}
		case strings.HasPrefix(line, keywordsLabel):
			rec.Keywords = splitKeywords(value(line, keywordsLabel))
		}
	}

	if !haveMood {
		return Fallback(), &ParseError{Field: "MOOD", Err: errMissingMood}
	}
	if !haveScore {
		return Fallback(), &ParseError{Field: "SENTIMENT", Err: errMissingSentiment}
	}
	return rec, nil
}

// Extract is Parse with every ParseError absorbed into Fallback.
func Extract(raw string) SentimentRecord {
	rec, err := Parse(raw)
	if err != nil {
		return Fallback()
	}
	return rec
}

func value(line, label string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, label))
}

func splitKeywords(s string) []string {
	out := []string{}
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
