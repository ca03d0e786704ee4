package mood

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/kokoro/internal/kokoro/llm"
)

func TestFeedbackWriter_Write(t *testing.T) {
	var prompt string
	gen := llm.GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "  You have been carrying a lot this week.  ", nil
	})

	got := NewFeedbackWriter(gen).Write(context.Background(), FeedbackInput{
		Mood:          Stressed,
		Score:         0.35,
		TotalSessions: 4,
		Pattern:       Pattern{Pattern: "Work stress", Trend: "declining"},
	})
	if got != "You have been carrying a lot this week." {
		t.Errorf("Write() = %q", got)
	}
	for _, want := range []string{
		"- Current mood: stressed",
		"- Sentiment score: 0.35",
		"- Total sessions: 4",
		"- Recent pattern: Work stress",
		"- Trend: declining",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestFeedbackPrompt_Defaults(t *testing.T) {
	p := FeedbackPrompt(FeedbackInput{Mood: Neutral, Score: 0.5})
	if !strings.Contains(p, "- Recent pattern: No pattern detected") || !strings.Contains(p, "- Trend: stable") {
		t.Errorf("defaults not applied:\n%s", p)
	}
}

func TestFeedbackWriter_Fallback(t *testing.T) {
	tests := []struct {
		name string
		gen  llm.GeneratorFunc
	}{
		{"model error", func(ctx context.Context, p string) (string, error) {
			return "", &llm.GenerationError{Op: "test", Err: errors.New("boom")}
		}},
		{"blank reply", func(ctx context.Context, p string) (string, error) {
			return " \n ", nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewFeedbackWriter(tt.gen).Write(context.Background(), FeedbackInput{Mood: Sad}); got != FallbackFeedback {
				t.Errorf("Write() = %q, want fallback", got)
			}
		})
	}
}
