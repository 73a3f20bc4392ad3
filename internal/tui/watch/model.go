package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/inbox/internal/api"
)

const (
	defaultInterval = 2 * time.Second
	pollTimeout     = 2 * time.Second
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	src      Source
	interval time.Duration

	width  int
	height int

	health   HealthState
	stats    api.StatsResponse
	recent   []api.MessageResponse
	activity Activity

	senders table.Model
	spinner spinner.Model
	theme   Theme

	lastError string
	now       func() time.Time
}

// New creates a watch model polling src every interval.
func New(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = defaultInterval
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))

	return Model{
		src:      src,
		interval: interval,
		senders:  newSenderTable(),
		spinner:  sp,
		theme:    NewDefaultTheme(),
		now:      time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchSnapshot(m.src, pollTimeout),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, refreshSnapshot(m.src, pollTimeout)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.senders.SetWidth(m.width - 6)
		m.senders.SetHeight(max(m.height/3, 3))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, fetchSnapshot(m.src, pollTimeout)

	case snapshotMsg:
		m.health = HealthState{Connected: true, Ready: msg.ready, LastCheck: msg.at}
		m.stats = msg.stats
		m.recent = msg.recent
		m.activity.Observe(msg.at, msg.stats.TotalMessages)
		m.senders.SetRows(senderRows(msg.stats))
		m.lastError = ""
		return m, m.nextPoll(msg.manual)

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, m.nextPoll(msg.manual)
	}

	var cmd tea.Cmd
	m.senders, cmd = m.senders.Update(msg)
	return m, cmd
}

// nextPoll keeps a single polling chain alive. Manual refreshes update the
// view in place; the pending tick already owns the next poll.
func (m Model) nextPoll(manual bool) tea.Cmd {
	if manual {
		return nil
	}
	return tick(m.interval)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to inbox..."
	}

	now := m.now()
	parts := []string{
		renderHeader(m, now),
		m.theme.Border.Width(m.width - 4).Render(
			m.theme.Header.Render(" Messages per sender") + "\n" + m.senders.View(),
		),
		renderRecent(m.recent, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Offline.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [r] Refresh • [↑/↓] Scroll senders"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
