// Package tui renders terminal output for the interactive simulate session.
package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown for the terminal.
// Falls back to plain text when the renderer cannot be initialized (dumb
// terminals, pipes).
func NewRenderer() func(string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(78),
	)
	if err != nil {
		return func(markdown string) string { return markdown + "\n" }
	}

	return func(markdown string) string {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown + "\n"
		}
		return out
	}
}
