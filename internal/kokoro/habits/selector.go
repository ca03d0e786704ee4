package habits

import (
	"context"
	"fmt"

	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
)

// DefaultCount is how many suggestions are returned per turn.
const DefaultCount = 2

// Suggestion is one recommended habit.
type Suggestion struct {
	Habit         string   `json:"habit"`
	Category      Category `json:"category"`
	Description   string   `json:"description"`
	Difficulty    string   `json:"difficulty"`
	EstimatedTime string   `json:"estimated_time"`
}

// FallbackSuggestion is returned whenever selection fails.
func FallbackSuggestion() Suggestion {
	return Suggestion{
		Habit:         "Take a few deep breaths",
		Category:      StressRelief,
		Description:   "Simple breathing exercise to help you feel more centered",
		Difficulty:    "easy",
		EstimatedTime: "2-3 minutes",
	}
}

// Request describes one selection.
type Request struct {
	Categories []Category
	Score      float64
	Count      int
	Mood       mood.Tag
	UserID     string
	// Day is mixed into the picker key; callers pass the UTC day.
	Day           string
	TotalSessions int
}

// Selector draws suggestions from a catalogue.
type Selector struct {
	catalog   *Catalog
	picker    Picker
	describer Describer
}

// Option customises a Selector.
type Option func(*Selector)

// WithPicker overrides the default HashPicker.
func WithPicker(p Picker) Option {
	return func(s *Selector) { s.picker = p }
}

// WithDescriber overrides the default StaticDescriber.
func WithDescriber(d Describer) Option {
	return func(s *Selector) { s.describer = d }
}

// NewSelector returns a Selector over catalog, or the embedded default when
// catalog is nil.
func NewSelector(catalog *Catalog, opts ...Option) *Selector {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	s := &Selector{catalog: catalog, picker: HashPicker{}, describer: StaticDescriber{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Catalog returns the catalogue in use.
func (s *Selector) Catalog() *Catalog { return s.catalog }

// For selects categories from m and score and then suggestions.
func (s *Selector) For(ctx context.Context, m mood.Tag, score float64, req Request) []Suggestion {
	req.Mood = m
	req.Score = score
	req.Categories = SelectCategories(m, score)
	return s.SelectSuggestions(ctx, req)
}

// SelectSuggestions takes the first Count categories and draws one habit
// from each known one. It never fails: any internal error returns the single
// FallbackSuggestion.
func (s *Selector) SelectSuggestions(ctx context.Context, req Request) (out []Suggestion) {
	log := observability.WithTrace(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error("habit selection panicked, using fallback", "panic", fmt.Sprint(r))
			out = []Suggestion{FallbackSuggestion()}
		}
	}()

	count := req.Count
	if count <= 0 {
		count = DefaultCount
	}
	cats := req.Categories
	if len(cats) > count {
		cats = cats[:count]
	}

	out = make([]Suggestion, 0, len(cats))
	for _, cat := range cats {
		pool := s.catalog.Pool(cat)
		if pool == nil {
			log.Debug("skipping unknown habit category", "category", cat)
			continue
		}
		habit, err := s.picker.Pick(req.UserID+"|"+req.Day+"|"+string(cat), pool)
		if err != nil {
			log.Warn("habit pick failed, using fallback", "category", cat, "err", err)
			return []Suggestion{FallbackSuggestion()}
		}
		desc, err := s.describer.Describe(ctx, DescribeRequest{
			Habit:         habit,
			Category:      cat,
			Mood:          req.Mood,
			TotalSessions: req.TotalSessions,
		})
		if err != nil || desc == "" {
			if err != nil {
				log.Warn("habit description failed", "habit", habit, "err", observability.RedactErr(err))
			}
			desc = staticDescription(habit)
		}
		out = append(out, Suggestion{
			Habit:         habit,
			Category:      cat,
			Description:   desc,
			Difficulty:    Difficulty(req.Score),
			EstimatedTime: s.catalog.EstimatedTime(cat),
		})
	}
	return out
}
