package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks what the last poll learned about the server.
type HealthState struct {
	Connected bool
	Ready     bool
	LastCheck time.Time
}

func renderHeader(m Model, now time.Time) string {
	innerWidth := m.width - 4
	theme := m.theme

	status := theme.Ready.Render("READY")
	switch {
	case !m.health.Connected:
		status = theme.Offline.Render("OFFLINE")
	case !m.health.Ready:
		status = theme.NotReady.Render("NOT READY")
	}

	clock := theme.Dim.Render(now.Format("15:04:05"))
	title := fmt.Sprintf(" INBOX WATCH %s", m.spinner.View())
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  Messages: %d  Senders: %d  Rate: %.1f/min",
		status,
		m.stats.TotalMessages,
		m.stats.SendersCount,
		m.activity.PerMinute(),
	)

	span := " First: -  Last: -"
	if m.stats.FirstMessageTS != nil && m.stats.LastMessageTS != nil {
		span = fmt.Sprintf(" First: %s  Last: %s", *m.stats.FirstMessageTS, *m.stats.LastMessageTS)
	}

	lastGrowth := "never"
	if g := m.activity.LastGrowth(); !g.IsZero() {
		lastGrowth = fmt.Sprintf("%s ago", now.Sub(g).Round(time.Second))
	}
	activityLine := fmt.Sprintf(" Last delivery: %s %s", lastGrowth, m.activity.Pulse(now, theme))

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		theme.Dim.Render(span),
		activityLine,
	)
	return theme.Border.Width(innerWidth).Render(content)
}
