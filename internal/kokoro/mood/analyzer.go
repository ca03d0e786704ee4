package mood

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
)

const sentimentPromptTmpl = `Analyze the emotional content of this message and provide:
1. Primary mood (%s)
2. Sentiment score (0.0 to 1.0, where 0.0 is very negative and 1.0 is very positive)
3. Emotional intensity (low, medium, high)
4. Key emotional keywords

Message: "%s"

Respond in this exact format:
MOOD: [mood_type]
SENTIMENT: [score]
INTENSITY: [intensity]
KEYWORDS: [comma-separated keywords]`

// SentimentPrompt renders the classification instruction for utterance.
func SentimentPrompt(utterance string) string {
	names := make([]string, len(Tags))
	for i, t := range Tags {
		names[i] = string(t)
	}
	return fmt.Sprintf(sentimentPromptTmpl, strings.Join(names, ", "), utterance)
}

// Analyzer classifies utterances through a Generator.
type Analyzer struct {
	gen llm.Generator
}

// NewAnalyzer returns an Analyzer backed by gen.
func NewAnalyzer(gen llm.Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze never fails: a generator error or an unparsable reply both yield
// Fallback.
func (a *Analyzer) Analyze(ctx context.Context, utterance string) SentimentRecord {
	log := observability.WithTrace(ctx)

	raw, err := a.gen.Generate(ctx, SentimentPrompt(utterance))
	if err != nil {
		log.Warn("sentiment analysis failed, using neutral fallback", "err", observability.RedactErr(err))
		return Fallback()
	}
	rec, err := Parse(raw)
	if err != nil {
		log.Warn("sentiment reply unparsable, using neutral fallback", "err", err)
		return Fallback()
	}
	log.Debug("sentiment analysed", "mood", rec.Mood, "score", rec.Score, "intensity", rec.Intensity)
	return rec
}
