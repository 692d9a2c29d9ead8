package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// Markdown renders assistant replies. A nil *Markdown, or one whose
// renderer failed to build, returns the source unchanged.
type Markdown struct {
	r *glamour.TermRenderer
}

// NewMarkdown builds a renderer for the current terminal background.
// width <= 0 disables word wrapping.
func NewMarkdown(width int) *Markdown {
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	return NewMarkdownStyle(style, width)
}

// NewMarkdownStyle builds a renderer with a named glamour style
// ("dark", "light", "notty", ...).
func NewMarkdownStyle(style string, width int) *Markdown {
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle(style)}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return &Markdown{}
	}
	return &Markdown{r: r}
}

// Render returns text styled for the terminal, trimmed of glamour's
// leading and trailing blank lines.
func (m *Markdown) Render(text string) string {
	if m == nil || m.r == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := m.r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
