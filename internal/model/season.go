package model

import "time"

// SeasonInterval is a declared range during which a competition is active.
// Both ends are concrete instants; Start must not be after End.
type SeasonInterval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval satisfies Start <= End.
func (s SeasonInterval) Valid() bool {
	return !s.Start.IsZero() && !s.End.IsZero() && !s.End.Before(s.Start)
}

// ContainsDate reports whether d falls within the interval, inclusive,
// comparing calendar dates as observed in loc.
func (s SeasonInterval) ContainsDate(d Date, loc *time.Location) bool {
	first := DateOf(s.Start.In(loc))
	last := DateOf(s.End.In(loc))
	return !d.Before(first) && !d.After(last)
}

// BoundingWindow collapses intervals into a single [min start, max end]
// span. ok is false when intervals is empty.
func BoundingWindow(intervals []SeasonInterval) (window SeasonInterval, ok bool) {
	for i, iv := range intervals {
		if i == 0 {
			window = iv
			continue
		}
		if iv.Start.Before(window.Start) {
			window.Start = iv.Start
		}
		if iv.End.After(window.End) {
			window.End = iv.End
		}
	}
	return window, len(intervals) > 0
}

// FixtureTimes is the usual weekly slot for a competition, used to time
// placeholder events.
type FixtureTimes struct {
	Weekday time.Weekday
	Start   TimeOfDay
	End     TimeOfDay
}

// Metadata is the decoded, validated season metadata carried in a feed URL.
type Metadata struct {
	Location string

	// Timezone is nil when the metadata did not name one.
	Timezone *time.Location

	SeasonIntervals []SeasonInterval
	Breaks          []SeasonInterval
	FixtureTimes    *FixtureTimes

	// CompetitionStart and Rounds describe a season as "N weekly rounds
	// from a start date"; the engine derives an extra interval from them.
	CompetitionStart *time.Time
	Rounds           int
}

// Intervals returns the declared season intervals plus the interval
// derived from CompetitionStart/Rounds, if any.
func (m *Metadata) Intervals() []SeasonInterval {
	if m == nil {
		return nil
	}
	out := make([]SeasonInterval, 0, len(m.SeasonIntervals)+1)
	out = append(out, m.SeasonIntervals...)
	if m.CompetitionStart != nil && m.Rounds > 0 {
		start := *m.CompetitionStart
		out = append(out, SeasonInterval{
			Start: start,
			End:   start.AddDate(0, 0, 7*(m.Rounds-1)),
		})
	}
	return out
}
