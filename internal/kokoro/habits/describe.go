package habits

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
)

// DescribeRequest carries what a describer may use to personalise text.
type DescribeRequest struct {
	Habit         string
	Category      Category
	Mood          mood.Tag
	TotalSessions int
}

// Describer writes the description attached to a suggestion.
type Describer interface {
	Describe(ctx context.Context, req DescribeRequest) (string, error)
}

// StaticDescriber returns a fixed sentence built from the habit name.
type StaticDescriber struct{}

func (StaticDescriber) Describe(_ context.Context, req DescribeRequest) (string, error) {
	return staticDescription(req.Habit), nil
}

func staticDescription(habit string) string {
	return fmt.Sprintf("Try %s to help improve your well-being.", strings.ToLower(habit))
}

const describePromptTmpl = `Create a personalized, encouraging description for this mental health habit:

Habit: %s
Category: %s
Current mood: %s
User experience level: %d sessions

Make the description:
1. Encouraging and non-judgmental
2. Specific and actionable
3. Tailored to their current emotional state
4. Brief (1-2 sentences)
5. Focused on benefits they'll experience

Description:`

// LLMDescriber asks the model for a short personalised description.
type LLMDescriber struct {
	Gen llm.Generator
}

func (d LLMDescriber) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	prompt := fmt.Sprintf(describePromptTmpl, req.Habit, req.Category, req.Mood, req.TotalSessions)
	out, err := d.Gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("habits: describe %q: %w", req.Habit, err)
	}
	return strings.TrimSpace(out), nil
}
