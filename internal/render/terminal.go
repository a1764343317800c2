package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
)

// TerminalRenderer renders answers as ANSI-styled text.
type TerminalRenderer struct {
	tr *glamour.TermRenderer
}

// NewTerminalRenderer creates a renderer wrapping at width. An empty style
// picks light or dark from the terminal background.
func NewTerminalRenderer(width int, style string) (*TerminalRenderer, error) {
	if width <= 0 {
		width = 80
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	tr, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("terminal renderer: %w", err)
	}
	return &TerminalRenderer{tr: tr}, nil
}

// Render shows citation tokens as superscript digits and lists the cited
// documents after the answer.
func (t *TerminalRenderer) Render(parsed *answer.ParsedAnswer) (string, error) {
	if parsed == nil {
		return "", nil
	}
	return t.tr.Render(TerminalMarkdown(parsed))
}

// TerminalMarkdown is the markdown handed to the terminal renderer.
func TerminalMarkdown(parsed *answer.ParsedAnswer) string {
	var b strings.Builder
	b.WriteString(answer.DisplayText(parsed.FormattedText))
	if len(parsed.Citations) > 0 {
		b.WriteString("\n\n---\n\n**References**\n\n")
		for _, c := range parsed.Citations {
			fmt.Fprintf(&b, "%d. %s", c.Index, c.Title)
			if c.URL != "" {
				fmt.Fprintf(&b, " <%s>", c.URL)
			} else if c.FilePath != "" {
				fmt.Fprintf(&b, " (`%s`)", c.FilePath)
			}
			if c.PartIndex > 1 {
				fmt.Fprintf(&b, " part %d", c.PartIndex)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
