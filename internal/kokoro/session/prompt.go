package session

import (
	"fmt"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

// Fixed user-facing texts.
const (
	CannedGreeting = "Hello! I'm here to listen and support you. How are you feeling today?"
	FallbackReply  = "I'm having trouble responding right now. Could you try again in a moment?"
)

// DefaultSystemPrompt is the companion's standing instruction.
const DefaultSystemPrompt = `You are an empathetic AI mental health companion with advanced emotional intelligence.

Your capabilities include:
- Real-time mood analysis and sentiment tracking
- Personalized feedback based on emotional patterns
- Habit suggestions tailored to individual needs
- Long-term relationship building with users

Core principles:
1. Provide emotional support and active listening
2. Maintain a warm, non-judgmental, and supportive tone
3. Reference past conversations and patterns when relevant
4. Offer specific, actionable coping strategies
5. Never give medical advice or attempt to diagnose
6. Always encourage professional help for serious concerns
7. Show genuine care and understanding
8. Adapt your approach based on the user's emotional state

Response guidelines:
- Always respond with empathy and understanding
- Use "I hear you" and "That sounds..." to validate feelings
- Ask open-ended questions to help users explore their thoughts
- If someone mentions self-harm or severe distress, immediately encourage professional help
- Keep responses conversational and not overly clinical
- Reference their emotional patterns when helpful
- Offer specific suggestions when appropriate

Remember: You're building a long-term supportive relationship, not just having a single conversation.`

const (
	DefaultMaxHistory    = 50
	DefaultContextTokens = 4000
)

// ContextBuilder renders the reply prompt.
type ContextBuilder struct {
	System     string
	MaxHistory int
	MaxTokens  int
}

// Build renders system instructions, the mood summary, optional
// personalised feedback and the tail of history. History is cut to MaxHistory turns, then oldest turns are dropped
// until the estimate fits MaxTokens; the newest turn is always kept.
func (b ContextBuilder) Build(rec mood.SentimentRecord, feedback string, history []Turn) string {
	system := b.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	maxHistory := b.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	maxTokens := b.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	history = trimToTokenBudget(history, maxTokens)

	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\nCurrent emotional context:\n")
	fmt.Fprintf(&sb, "- Detected mood: %s\n", rec.Mood)
	fmt.Fprintf(&sb, "- Sentiment score: %.2f\n", rec.Score)
	fmt.Fprintf(&sb, "- Emotional intensity: %s\n", rec.Intensity)
	fmt.Fprintf(&sb, "- Key emotions: %s\n", strings.Join(rec.Keywords, ", "))
	if feedback != "" {
		fmt.Fprintf(&sb, "\nPersonalized feedback: %s\n", feedback)
	}
	sb.WriteString("\nConversation history:\n")
	for _, t := range history {
		role := "User"
		if t.Role == RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, t.Content)
	}
	return sb.String()
}

func estimateTokens(turns []Turn) int {
	const charsPerToken = 4
	const perTurnOverhead = 4

	total := 0
	for _, t := range turns {
		total += len(t.Content)/charsPerToken + perTurnOverhead
	}
	return total
}

func trimToTokenBudget(turns []Turn, budget int) []Turn {
	for len(turns) > 1 && estimateTokens(turns) > budget {
		turns = turns[1:]
	}
	return turns
}

const greetingPromptTmpl = `Generate a warm, personalized greeting for a returning user.

User context:
- Total sessions: %d
- Total messages: %d
- Last active: %s

Make it:
1. Welcoming and familiar
2. Acknowledges their return
3. Encourages them to share how they're feeling
4. Warm and supportive
5. Brief (1-2 sentences)

Greeting:`

// GreetingPrompt renders the returning-user greeting request.
func GreetingPrompt(u *store.User) string {
	return fmt.Sprintf(greetingPromptTmpl, u.TotalSessions, u.TotalMessages, u.LastActive.Format("January 02"))
}
