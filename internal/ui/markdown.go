package ui

import (
	"charm.land/glamour/v2"
	"github.com/muesli/termenv"
)

// RenderMarkdown renders markdown for the terminal. The text is returned
// unchanged when color is off or rendering fails.
func RenderMarkdown(markdown string) string {
	if !colorEnabled() {
		return markdown
	}

	// Wide lines are hard to read; cap the wrap width.
	const maxReadableWidth = 100
	wrapWidth := TerminalWidth(80)
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
