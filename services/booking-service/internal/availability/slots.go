package availability

import (
	"time"

	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

// AvailableSlots returns start times within window where a reservation of
// length duration fits without overlapping any busy interval. Candidates are
// spaced by step from window.Start; starts before now are skipped.
func AvailableSlots(window model.Interval, duration, step time.Duration, busy []model.Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 || !window.Valid() {
		return nil
	}
	if window.Start.Add(duration).After(window.End) {
		return nil
	}

	var slots []time.Time
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
		if !t.After(now) {
			continue
		}
		if !overlapsAny(model.Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(candidate model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
