package model

import "time"

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return !i.Start.IsZero() && i.End.After(i.Start)
}

// Overlaps reports whether [a,b) and [c,d) share an instant: a < d && c < b.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
