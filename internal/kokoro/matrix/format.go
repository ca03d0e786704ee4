package matrix

import (
	"fmt"
	"html"
	"strings"

	"github.com/bdobrica/kokoro/internal/kokoro/commands"
)

// FormatResponse renders resp as a plain-text body and an HTML body. The
// greeting, when present, comes first and suggestions follow the text as a
// list.
func FormatResponse(resp *commands.Response) (plain, htmlBody string) {
	var p, h strings.Builder

	paragraph := func(text string) {
		if text == "" {
			return
		}
		if p.Len() > 0 {
			p.WriteString("\n\n")
		}
		p.WriteString(text)
		h.WriteString("<p>")
		h.WriteString(strings.ReplaceAll(html.EscapeString(text), "\n", "<br>"))
		h.WriteString("</p>")
	}
	paragraph(resp.Greeting)
	paragraph(resp.Text)

	if len(resp.Suggestions) > 0 {
		if p.Len() > 0 {
			p.WriteString("\n\n")
		}
		p.WriteString("Suggestions:")
		h.WriteString("<p><strong>Suggestions</strong></p><ul>")
		for _, s := range resp.Suggestions {
			fmt.Fprintf(&p, "\n- %s (%s, %s): %s", s.Habit, s.Category, s.EstimatedTime, s.Description)
			fmt.Fprintf(&h, "<li><strong>%s</strong> <em>(%s, %s)</em>: %s</li>",
				html.EscapeString(s.Habit),
				html.EscapeString(string(s.Category)),
				html.EscapeString(s.EstimatedTime),
				html.EscapeString(s.Description),
			)
		}
		h.WriteString("</ul>")
	}
	return p.String(), h.String()
}
