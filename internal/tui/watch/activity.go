package watch

import (
	"strings"
	"time"
)

const rateWindow = time.Minute

type sample struct {
	at    time.Time
	total int
}

// Activity tracks how fast the corpus grows from successive totals.
type Activity struct {
	samples  []sample
	lastGrow time.Time
}

// Observe records a total seen at t. Samples older than the rate window are
// dropped, keeping the newest one outside it as the baseline.
func (a *Activity) Observe(t time.Time, total int) {
	if n := len(a.samples); n > 0 && total > a.samples[n-1].total {
		a.lastGrow = t
	}
	a.samples = append(a.samples, sample{at: t, total: total})

	cut := 0
	for i := range a.samples {
		if t.Sub(a.samples[i].at) > rateWindow {
			cut = i
		}
	}
	a.samples = a.samples[cut:]
}

// PerMinute returns messages per minute across the retained samples.
func (a Activity) PerMinute() float64 {
	if len(a.samples) < 2 {
		return 0
	}
	first, last := a.samples[0], a.samples[len(a.samples)-1]
	span := last.at.Sub(first.at)
	if span <= 0 || last.total <= first.total {
		return 0
	}
	return float64(last.total-first.total) / span.Minutes()
}

// LastGrowth is when the total last increased, zero if never observed.
func (a Activity) LastGrowth() time.Time {
	return a.lastGrow
}

// Pulse renders five dots that light on growth and fade over ten seconds.
func (a Activity) Pulse(now time.Time, theme Theme) string {
	lit := 0
	if !a.lastGrow.IsZero() {
		lit = max(5-int(now.Sub(a.lastGrow)/(2*time.Second)), 0)
	}
	var b strings.Builder
	for i := range 5 {
		if i < lit {
			b.WriteString(theme.RateActive.Render("●"))
		} else {
			b.WriteString(theme.RateInactive.Render("○"))
		}
	}
	return b.String()
}
