package mood

import (
	"context"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
)

// PatternWindow is how many of the most recent user messages are analysed.
const PatternWindow = 10

// Pattern summarises the emotional arc of recent messages.
type Pattern struct {
	Pattern    string `json:"pattern"`
	Trend      string `json:"trend"`
	Suggestion string `json:"suggestion"`
}

// NoMessagesPattern is returned when there is nothing to analyse.
func NoMessagesPattern() Pattern {
	return Pattern{
		Pattern:    "No user messages to analyze",
		Trend:      "stable",
		Suggestion: "Share your thoughts to get personalized support",
	}
}

// UnavailablePattern is returned when the model cannot be reached.
func UnavailablePattern() Pattern {
	return Pattern{
		Pattern:    "Unable to analyze patterns at this time",
		Trend:      "stable",
		Suggestion: "Continue sharing your thoughts for better insights",
	}
}

const patternPromptHeader = `Analyze these recent messages for emotional patterns and provide insights:

Recent messages:
`

const patternPromptFooter = `

Provide analysis in this format:
PATTERN: [brief description of emotional pattern]
TREND: [improving/declining/stable]
SUGGESTION: [personalized coping strategy or habit suggestion]`

// PatternAnalyzer asks the model to describe a trend across messages.
type PatternAnalyzer struct {
	gen llm.Generator
}

func NewPatternAnalyzer(gen llm.Generator) *PatternAnalyzer {
	return &PatternAnalyzer{gen: gen}
}

// Analyze looks at the last PatternWindow entries of userMessages, oldest
// first.
func (p *PatternAnalyzer) Analyze(ctx context.Context, userMessages []string) Pattern {
	if len(userMessages) > PatternWindow {
		userMessages = userMessages[len(userMessages)-PatternWindow:]
	}
	var b strings.Builder
	for _, m := range userMessages {
		if strings.TrimSpace(m) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(m)
	}
	if b.Len() == 0 {
		return NoMessagesPattern()
	}

	raw, err := p.gen.Generate(ctx, patternPromptHeader+b.String()+patternPromptFooter)
	if err != nil {
		observability.WithTrace(ctx).Warn("pattern analysis failed", "err", observability.RedactErr(err))
		return UnavailablePattern()
	}
	return ParsePattern(raw)
}

// ParsePattern reads PATTERN, TREND and SUGGESTION lines. Missing fields
// keep the UnavailablePattern wording; TREND is lower-cased.
func ParsePattern(raw string) Pattern {
	out := UnavailablePattern()
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "PATTERN:"):
			if v := value(line, "PATTERN:"); v != "" {
				out.Pattern = v
			}
		case strings.HasPrefix(line, "TREND:"):
			if v := strings.ToLower(value(line, "TREND:")); v != "" {
				out.Trend = v
			}
		case strings.HasPrefix(line, "SUGGESTION:"):
			if v := value(line, "SUGGESTION:"); v != "" {
				out.Suggestion = v
			}
		}
	}
	return out
}
