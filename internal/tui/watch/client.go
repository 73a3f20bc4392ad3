package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/inbox/internal/api"
)

// recentCount is how many of the newest messages the TUI shows.
const recentCount = 8

// Source is the subset of api.Client the TUI polls.
type Source interface {
	Stats(ctx context.Context) (api.StatsResponse, error)
	Ready(ctx context.Context) (bool, error)
	Messages(ctx context.Context, limit, offset int) (api.ListResponse, error)
}

type snapshotMsg struct {
	ready  bool
	stats  api.StatsResponse
	recent []api.MessageResponse
	at     time.Time
	manual bool
}

type tickMsg time.Time

type errMsg struct {
	err    error
	manual bool
}

func (e errMsg) Error() string { return e.err.Error() }

// fetchSnapshot reads readiness, statistics and the newest page of messages.
// Messages are listed in insertion order, so the newest page sits at the end.
func fetchSnapshot(src Source, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ready, err := src.Ready(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		stats, err := src.Stats(ctx)
		if err != nil {
			return errMsg{err: err}
		}

		offset := max(stats.TotalMessages-recentCount, 0)
		page, err := src.Messages(ctx, recentCount, offset)
		if err != nil {
			return errMsg{err: err}
		}

		return snapshotMsg{ready: ready, stats: stats, recent: page.Data, at: time.Now()}
	}
}

// refreshSnapshot fetches like fetchSnapshot but marks the result manual, so
// the model does not schedule another poll for it.
func refreshSnapshot(src Source, timeout time.Duration) tea.Cmd {
	fetch := fetchSnapshot(src, timeout)
	return func() tea.Msg {
		switch msg := fetch().(type) {
		case snapshotMsg:
			msg.manual = true
			return msg
		case errMsg:
			msg.manual = true
			return msg
		default:
			return msg
		}
	}
}

func tick(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg { return tickMsg(t) })
}
