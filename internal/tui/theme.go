// Package tui implements the live server-health watch view.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusOnline     lipgloss.Style
	StatusOffline    lipgloss.Style
	StatusDegraded   lipgloss.Style
	StatusOverloaded lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOnline:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusOffline:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusDegraded:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusOverloaded: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
	}
}
