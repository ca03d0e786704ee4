// Package mood turns a user utterance into a SentimentRecord by asking the
// generative model for a four-line labelled reply and parsing it.
package mood

import "slices"

// Tag is a mood label. The ten constants below form the closed set the
// classifier is asked to choose from; Parse does not reject other values.
type Tag string

const (
	VeryHappy Tag = "very_happy"
	Happy     Tag = "happy"
	Neutral   Tag = "neutral"
	Sad       Tag = "sad"
	VerySad   Tag = "very_sad"
	Anxious   Tag = "anxious"
	Stressed  Tag = "stressed"
	Calm      Tag = "calm"
	Excited   Tag = "excited"
	Tired     Tag = "tired"
)

// Tags lists the closed set in prompt order.
var Tags = []Tag{VeryHappy, Happy, Neutral, Sad, VerySad, Anxious, Stressed, Calm, Excited, Tired}

// Valid reports whether t is one of the ten known tags.
func (t Tag) Valid() bool {
	return slices.Contains(Tags, t)
}

// Normalize returns t when valid and Neutral otherwise.
func (t Tag) Normalize() Tag {
	if t.Valid() {
		return t
	}
	return Neutral
}

// Intensity is the emotional intensity reported alongside a mood.
type Intensity string

const (
	Low    Intensity = "low"
	Medium Intensity = "medium"
	High   Intensity = "high"
)

// SentimentRecord is the structured result of analysing one utterance.
type SentimentRecord struct {
	Mood      Tag       `json:"mood" bson:"mood"`
	Score     float64   `json:"sentiment_score" bson:"sentiment_score"`
	Intensity Intensity `json:"intensity" bson:"intensity"`
	Keywords  []string  `json:"keywords" bson:"keywords"`
}

// Clone returns a copy that shares no memory with r.
func (r SentimentRecord) Clone() SentimentRecord {
	cp := r
	cp.Keywords = append([]string{}, r.Keywords...)
	return cp
}

// Fallback is the record used whenever analysis cannot produce a result.
func Fallback() SentimentRecord {
	return SentimentRecord{Mood: Neutral, Score: 0.5, Intensity: Low, Keywords: []string{}}
}
