package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	spinnerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
	successStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	skippedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	subtleStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
)
