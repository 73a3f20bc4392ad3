// Package watch implements the inbox watch TUI: a live view of readiness,
// corpus statistics and the most recent deliveries, polled from a running
// server.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme keeps every style of the watch TUI in one place.
type Theme struct {
	Ready    lipgloss.Style
	NotReady lipgloss.Style
	Offline  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	RateActive   lipgloss.Style
	RateInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Ready:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		NotReady: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Offline:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

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

		RateActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		RateInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
