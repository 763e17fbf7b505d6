package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

var keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#ECFD65"})

// keyword renders a string with the keyword highlight.
func keyword(s string) string {
	return keywordStyle.Render(s)
}

// paragraph wraps and indents help text for terminal display.
func paragraph(s string) string {
	s = strings.TrimSpace(s)
	s = wordwrap.String(s, 78)
	return indent.String(s, 2)
}
