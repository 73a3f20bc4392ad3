package watch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/inbox/internal/api"
)

func newSenderTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Sender", Width: 20},
			{Title: "Messages", Width: 10},
			{Title: "Share", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// senderRows orders senders by count, busiest first, ties by number.
func senderRows(stats api.StatsResponse) []table.Row {
	senders := append([]api.SenderCountResponse(nil), stats.MessagesPerSender...)
	sort.SliceStable(senders, func(i, j int) bool {
		if senders[i].Count != senders[j].Count {
			return senders[i].Count > senders[j].Count
		}
		return senders[i].From < senders[j].From
	})

	rows := make([]table.Row, 0, len(senders))
	for _, s := range senders {
		share := "-"
		if stats.TotalMessages > 0 {
			share = strconv.Itoa(s.Count*100/stats.TotalMessages) + "%"
		}
		rows = append(rows, table.Row{s.From, strconv.Itoa(s.Count), share})
	}
	return rows
}

func renderRecent(msgs []api.MessageResponse, theme Theme, width int) string {
	innerWidth := width - 4
	var b strings.Builder
	b.WriteString(theme.Header.Render(" Recent deliveries"))
	b.WriteString("\n")

	if len(msgs) == 0 {
		b.WriteString(theme.Dim.Render(" (none yet)"))
		return theme.Border.Width(innerWidth).Render(b.String())
	}

	// Newest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		prefix := " " + theme.Dim.Render(m.ReceivedAt) + " " + theme.Highlight.Render(m.From) + " "
		room := max(innerWidth-lipgloss.Width(prefix)-2, 8)
		b.WriteString(prefix + truncate(oneLine(m.Text), room))
		if i > 0 {
			b.WriteString("\n")
		}
	}
	return theme.Border.Width(innerWidth).Render(b.String())
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
