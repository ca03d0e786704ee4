package mood

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
)

// FallbackFeedback is used whenever feedback cannot be generated.
const FallbackFeedback = "I'm here to listen and support you. How are you feeling right now?"

const feedbackPromptTmpl = `Generate personalized, empathetic feedback for a mental health companion user.

User context:
- Current mood: %s
- Sentiment score: %.2f
- Total sessions: %d
- Recent pattern: %s
- Trend: %s

Provide a supportive, personalized response that:
1. Acknowledges their current emotional state
2. References their recent patterns if relevant
3. Offers specific, actionable suggestions
4. Maintains a warm, non-judgmental tone
5. Keeps it concise (2-3 sentences)

Response:`

// FeedbackInput is what the feedback prompt is built from.
type FeedbackInput struct {
	Mood          Tag
	Score         float64
	TotalSessions int
	Pattern       Pattern
}

// FeedbackPrompt renders the feedback request for in.
func FeedbackPrompt(in FeedbackInput) string {
	pattern := in.Pattern.Pattern
	if pattern == "" {
		pattern = "No pattern detected"
	}
	trend := in.Pattern.Trend
	if trend == "" {
		trend = "stable"
	}
	return fmt.Sprintf(feedbackPromptTmpl, in.Mood, in.Score, in.TotalSessions, pattern, trend)
}

// FeedbackWriter asks the model for a short personalised note that is
// folded into the reply prompt.
type FeedbackWriter struct {
	gen llm.Generator
}

func NewFeedbackWriter(gen llm.Generator) *FeedbackWriter {
	return &FeedbackWriter{gen: gen}
}

// Write never fails; model errors and empty replies yield FallbackFeedback.
func (w *FeedbackWriter) Write(ctx context.Context, in FeedbackInput) string {
	text, err := w.gen.Generate(ctx, FeedbackPrompt(in))
	if err != nil {
		observability.WithTrace(ctx).Warn("personalised feedback failed", "err", observability.RedactErr(err))
		return FallbackFeedback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackFeedback
	}
	return text
}
