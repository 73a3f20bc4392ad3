package message

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
)

// SenderCount is the number of stored messages from one sender.
type SenderCount struct {
	From  string
	Count int
}

// Stats summarises the whole stored corpus.
type Stats struct {
	Total     int
	Senders   int
	PerSender []SenderCount
	// First and Last are nil when the store is empty.
	First *time.Time
	Last  *time.Time
}

// SenderAggregate is one grouped row a backend feeds into NewStats.
type SenderAggregate struct {
	From  string
	Count int
	First time.Time
	Last  time.Time
}

// NewStats folds per-sender aggregates into a Stats value. PerSender is sorted
// by count descending, then sender ascending.
func NewStats(groups []SenderAggregate) Stats {
	st := Stats{
		Total:   lo.SumBy(groups, func(g SenderAggregate) int { return g.Count }),
		Senders: len(groups),
		PerSender: lo.Map(groups, func(g SenderAggregate, _ int) SenderCount {
			return SenderCount{From: g.From, Count: g.Count}
		}),
	}
	sort.Slice(st.PerSender, func(i, j int) bool {
		a, b := st.PerSender[i], st.PerSender[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.From < b.From
	})

	for _, g := range groups {
		if st.First == nil || g.First.Before(*st.First) {
			first := g.First
			st.First = &first
		}
		if st.Last == nil || g.Last.After(*st.Last) {
			last := g.Last
			st.Last = &last
		}
	}
	return st
}

// StatsService computes corpus statistics. Every call reads the store afresh.
type StatsService struct {
	store Store
}

func NewStatsService(store Store) *StatsService {
	return &StatsService{store: store}
}

// Snapshot returns the current statistics.
func (s *StatsService) Snapshot(ctx context.Context) (Stats, error) {
	st, err := s.store.Aggregate(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	if st.PerSender == nil {
		st.PerSender = []SenderCount{}
	}
	return st, nil
}
