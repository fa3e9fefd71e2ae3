// Package status classifies named time windows against wall-clock time and
// keeps the classifications live on a fixed cadence without refetching the
// snapshot.
package status

import (
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
)

// Classify is a pure function of (now, window). Phase follows the interval
// relation exactly; remaining durations are floored to whole minutes and
// never negative. A zero-width window reads as passed once now >= start, so
// it can never be active.
func Classify(now time.Time, w models.TimeWindow) models.WindowStatus {
	if w.Start.Equal(w.End) && !now.Before(w.Start) {
		return models.WindowStatus{Window: w, Phase: models.PhasePassed}
	}

	switch {
	case now.Before(w.Start):
		rem := floorToMinute(w.Start.Sub(now))
		return models.WindowStatus{Window: w, Phase: models.PhaseUpcoming, Remaining: &rem}
	case now.After(w.End):
		return models.WindowStatus{Window: w, Phase: models.PhasePassed}
	default:
		rem := floorToMinute(w.End.Sub(now))
		return models.WindowStatus{Window: w, Phase: models.PhaseActive, Remaining: &rem}
	}
}

// ClassifyAll classifies every window independently. Overlapping windows are
// valid; no ordering constraint is enforced.
func ClassifyAll(now time.Time, windows []models.TimeWindow) []models.WindowStatus {
	out := make([]models.WindowStatus, len(windows))
	for i, w := range windows {
		out[i] = Classify(now, w)
	}
	return out
}

func floorToMinute(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Minute)
}
