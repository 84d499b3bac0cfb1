package reconcile

import (
	"fmt"
	"strings"
	"time"

	"fixcal/internal/model"
)

// YearBuilder constructs the candidate instant for a year. ok is false when
// the month/day does not exist in that year (Feb 29).
type YearBuilder func(year int) (t time.Time, ok bool)

// YearPolicy picks a year for a year-less fixture date from the season
// intervals. Candidate years run from the earliest interval start year to
// the latest interval end year, ascending; the first accepted year wins.
type YearPolicy interface {
	Name() string
	InferYear(build YearBuilder, intervals []model.SeasonInterval, loc *time.Location) (time.Time, bool)
}

const (
	PolicyBoundingWindow = "bounding_window"
	PolicyPerInterval    = "per_interval"
)

// BoundingWindowPolicy accepts a candidate that falls anywhere between the
// earliest start and latest end of all intervals. Gaps between
// non-contiguous intervals are not honoured.
type BoundingWindowPolicy struct{}

func (BoundingWindowPolicy) Name() string { return PolicyBoundingWindow }

func (BoundingWindowPolicy) InferYear(build YearBuilder, intervals []model.SeasonInterval, loc *time.Location) (time.Time, bool) {
	window, ok := model.BoundingWindow(intervals)
	if !ok {
		return time.Time{}, false
	}
	return firstYear(build, window, loc, func(d model.Date) bool {
		return window.ContainsDate(d, loc)
	})
}

// PerIntervalPolicy only accepts a candidate that falls inside at least one
// declared interval, so off-season gaps fall through to the next year.
type PerIntervalPolicy struct{}

func (PerIntervalPolicy) Name() string { return PolicyPerInterval }

func (PerIntervalPolicy) InferYear(build YearBuilder, intervals []model.SeasonInterval, loc *time.Location) (time.Time, bool) {
	window, ok := model.BoundingWindow(intervals)
	if !ok {
		return time.Time{}, false
	}
	return firstYear(build, window, loc, func(d model.Date) bool {
		for _, iv := range intervals {
			if iv.ContainsDate(d, loc) {
				return true
			}
		}
		return false
	})
}

func firstYear(build YearBuilder, window model.SeasonInterval, loc *time.Location, accept func(model.Date) bool) (time.Time, bool) {
	from := window.Start.In(loc).Year()
	to := window.End.In(loc).Year()
	for year := from; year <= to; year++ {
		t, ok := build(year)
		if !ok {
			continue
		}
		if accept(model.DateOf(t)) {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseYearPolicy maps a config value to a policy. Empty selects the
// bounding window policy.
func ParseYearPolicy(name string) (YearPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyBoundingWindow:
		return BoundingWindowPolicy{}, nil
	case PolicyPerInterval:
		return PerIntervalPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown year policy %q", name)
	}
}
