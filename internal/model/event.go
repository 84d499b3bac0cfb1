package model

import "time"

// Timing is either Timed or AllDay.
type Timing interface {
	Start() time.Time
	IsAllDay() bool
	isTiming()
}

// Timed is an occasion with a known clock time.
type Timed struct {
	StartAt time.Time
	EndAt   time.Time
}

func (t Timed) Start() time.Time {
	return t.StartAt
}

func (Timed) IsAllDay() bool {
	return false
}

func (Timed) isTiming() {}

// AllDay is an occasion whose time of day is not known. Day is midnight of
// the date in the calendar's location; a zero Day means the date itself
// could not be resolved.
type AllDay struct {
	Day time.Time
}

func (a AllDay) Start() time.Time {
	return a.Day
}

func (AllDay) IsAllDay() bool {
	return true
}

func (AllDay) isTiming() {}

// ResolvedEvent is one calendar entry produced by reconciliation.
type ResolvedEvent struct {
	UID         string
	Timing      Timing
	Summary     string
	Description string
	Location    string

	// Placeholder marks a synthetic entry for an unposted round. Real
	// events carry the provider's MatchID.
	Placeholder bool
	MatchID     int
}

// Start returns the event's start instant, or the zero time if the event
// has no timing at all.
func (e ResolvedEvent) Start() time.Time {
	if e.Timing == nil {
		return time.Time{}
	}
	return e.Timing.Start()
}

// End returns the end instant of a timed event. ok is false for all-day
// events.
func (e ResolvedEvent) End() (end time.Time, ok bool) {
	if t, isTimed := e.Timing.(Timed); isTimed {
		return t.EndAt, true
	}
	return time.Time{}, false
}

// AllDay reports whether the event is an all-day occasion.
func (e ResolvedEvent) AllDay() bool {
	return e.Timing != nil && e.Timing.IsAllDay()
}
