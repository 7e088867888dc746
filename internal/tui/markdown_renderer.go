package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// minInfoWrap keeps the info table legible on narrow terminals.
const minInfoWrap = 24

// markdownRenderer renders the info panel and rebuilds the glamour renderer when the wrap width or style changes.
type markdownRenderer struct {
	style    string
	width    int
	built    string
	renderer *glamour.TermRenderer
}

// render converts markdown into ANSI-styled text wrapped at width. Errors fall back to the raw markdown.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	wrap := max(minInfoWrap, width)
	style := r.style
	if style == "" {
		style = "dark"
	}

	if r.renderer == nil || r.width != wrap || r.built != style {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrap
		r.built = style
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.Trim(rendered, "\n")
}
