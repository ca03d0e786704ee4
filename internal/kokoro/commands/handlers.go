package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/companion"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/session"
)

const (
	endedText     = "Session ended. Take care of yourself, and come back any time."
	noSessionText = "There is no active conversation. Just say hello to start one."
)

// Handlers implements the companion commands on top of a Manager.
type Handlers struct {
	mgr    *companion.Manager
	router *Router
}

// NewHandlers registers every companion command on router.
func NewHandlers(mgr *companion.Manager, router *Router) *Handlers {
	h := &Handlers{mgr: mgr, router: router}
	router.Register("help", h.Help)
	router.Register("start", h.Start)
	router.Register("end", h.End)
	router.Register("report", h.Report)
	router.Register("insights", h.Insights)
	router.Register("suggest", h.Suggest)
	return h
}

// Handle routes commands and sends any other text to the companion.
func (h *Handlers) Handle(ctx context.Context, req Request, text string) (*Response, error) {
	resp, err := h.router.Route(ctx, text, req)
	if errors.Is(err, ErrEmptyCommand) {
		return h.Help(ctx, &Command{Name: "help"}, req)
	}
	if !errors.Is(err, ErrNotACommand) {
		return resp, err
	}

	res, err := h.mgr.Send(ctx, req.Key, req.UserID, text)
	if err != nil {
		return nil, err
	}
	out := &Response{Text: res.Reply.Text, Suggestions: res.Reply.Suggestions}
	if res.Greeting != nil {
		out.Greeting = res.Greeting.Text
	}
	return out, nil
}

// Help lists the commands.
func (h *Handlers) Help(ctx context.Context, cmd *Command, req Request) (*Response, error) {
	p := h.router.Prefix()
	var b strings.Builder
	b.WriteString("I'm here to listen. Just write to me, or use:\n")
	fmt.Fprintf(&b, "%s start: begin a new conversation\n", p)
	fmt.Fprintf(&b, "%s end: close the current conversation\n", p)
	fmt.Fprintf(&b, "%s report: your mood over the last week\n", p)
	fmt.Fprintf(&b, "%s insights: patterns in your recent messages\n", p)
	fmt.Fprintf(&b, "%s suggest: habits for how you feel right now\n", p)
	fmt.Fprintf(&b, "%s help: this message", p)
	return &Response{Text: b.String()}, nil
}

// Start begins a new conversation, ending any previous one.
func (h *Handlers) Start(ctx context.Context, cmd *Command, req Request) (*Response, error) {
	g, err := h.mgr.Start(ctx, req.Key, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("commands: start: %w", err)
	}
	return &Response{Text: g.Text, Suggestions: g.Suggestions}, nil
}

// End closes the current conversation.
func (h *Handlers) End(ctx context.Context, cmd *Command, req Request) (*Response, error) {
	ended, err := h.mgr.End(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("commands: end: %w", err)
	}
	if !ended {
		return &Response{Text: noSessionText}, nil
	}
	return &Response{Text: endedText}, nil
}

// Report renders the weekly report.
func (h *Handlers) Report(ctx context.Context, cmd *Command, req Request) (*Response, error) {
	r, err := h.mgr.Weekly(ctx, req.UserID)
	if err != nil && r.Summary == "" {
		return nil, fmt.Errorf("commands: report: %w", err)
	}
	return &Response{Text: FormatReport(r)}, nil
}

// Insights renders the recent pattern analysis.
func (h *Handlers) Insights(ctx context.Context, cmd *Command, req Request) (*Response, error) {
	p, err := h.mgr.Insights(ctx, req.UserID)
	if err != nil && p.Pattern == "" {
		return nil, fmt.Errorf("commands: insights: %w", err)
	}
	return &Response{Text: FormatPattern(p)}, nil
}

// Suggest recomputes habit suggestions for the current conversation.
func (h *Handlers) Suggest(ctx context.Context, cmd *Command, req Request) (*Response, error) {
	sg, err := h.mgr.Suggest(ctx, req.Key)
	if errors.Is(err, companion.ErrUnknownSession) || errors.Is(err, session.ErrInvalidState) {
		return &Response{Text: noSessionText}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("commands: suggest: %w", err)
	}
	return &Response{Text: "Here are a few things you could try:", Suggestions: sg}, nil
}

// FormatReport renders a weekly report as plain text.
func FormatReport(r analytics.Report) string {
	var b strings.Builder
	b.WriteString(r.Summary)
	if r.Trend != analytics.Unknown {
		fmt.Fprintf(&b, "\nTrend: %s", r.Trend)
		fmt.Fprintf(&b, "\nSessions: %d, messages: %d", r.TotalSessions, r.TotalMessages)
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "\n- %s", rec)
	}
	return b.String()
}

// FormatPattern renders a pattern analysis as plain text.
func FormatPattern(p mood.Pattern) string {
	return fmt.Sprintf("Pattern: %s\nTrend: %s\nSuggestion: %s", p.Pattern, p.Trend, p.Suggestion)
}
