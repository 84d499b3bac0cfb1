package reconcile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fixcal/internal/clock"
	"fixcal/internal/model"
)

// TimeNotKnown is the provider's sentinel for a fixture whose start time
// has not been published.
const TimeNotKnown = "NA"

// FixtureDuration is assumed for every timed fixture; the provider does not
// publish durations.
const FixtureDuration = time.Hour

var clockLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

var weekdayPrefixes = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Resolver turns a year-less fixture date/time into a concrete Timing.
type Resolver struct {
	loc    *time.Location
	policy YearPolicy
	clock  clock.Clock
	logger *zap.Logger
}

// NewResolver builds a Resolver. Nil arguments fall back to UTC, the
// bounding window policy, the system clock and a no-op logger.
func NewResolver(loc *time.Location, policy YearPolicy, clk clock.Clock, logger *zap.Logger) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if policy == nil {
		policy = BoundingWindowPolicy{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{loc: loc, policy: policy, clock: clk, logger: logger}
}

// Location returns the zone instants are constructed in.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve never fails. Problems degrade the result and are reported on the
// logger:
//   - an unparseable date yields AllDay with a zero Day,
//   - an unparseable time yields AllDay on the parsed date,
//   - no interval match falls back to fallbackYear.
func (r *Resolver) Resolve(dateFrag, timeFrag, fallbackYear string, intervals []model.SeasonInterval) model.Timing {
	month, day, err := parseMonthDay(dateFrag)
	if err != nil {
		r.logger.Warn("fixture date unparseable",
			zap.String("date", dateFrag), zap.String("time", timeFrag), zap.Error(err))
		return model.AllDay{}
	}

	allDay := isTimeNotKnown(timeFrag)
	var hour, minute int
	if !allDay {
		hour, minute, err = parseClock(timeFrag)
		if err != nil {
			r.logger.Warn("fixture time unparseable; treating as all-day",
				zap.String("date", dateFrag), zap.String("time", timeFrag), zap.Error(err))
			allDay = true
		}
	}
	if allDay {
		hour, minute = 0, 0
	}

	build := func(year int) (time.Time, bool) {
		t := time.Date(year, month, day, hour, minute, 0, 0, r.loc)
		return t, t.Month() == month && t.Day() == day
	}

	start, ok := time.Time{}, false
	if len(intervals) > 0 {
		start, ok = r.policy.InferYear(build, intervals, r.loc)
		if !ok {
			r.logger.Warn("year inference fell back to formation year",
				zap.String("date", dateFrag),
				zap.String("formation_year", fallbackYear),
				zap.String("policy", r.policy.Name()),
				zap.Int("intervals", len(intervals)))
		}
	} else {
		r.logger.Debug("no season intervals; using formation year",
			zap.String("date", dateFrag), zap.String("formation_year", fallbackYear))
	}

	if !ok {
		year, yerr := strconv.Atoi(strings.TrimSpace(fallbackYear))
		if yerr != nil {
			year = r.clock.Now().In(r.loc).Year()
			r.logger.Warn("formation year unparseable; using current year",
				zap.String("formation_year", fallbackYear), zap.Int("year", year))
		}
		start, ok = build(year)
		if !ok {
			// Feb 29 outside a leap year: keep the normalised date.
			r.logger.Warn("fixture date does not exist in fallback year",
				zap.String("date", dateFrag), zap.Int("year", year),
				zap.String("resolved", start.Format("2006-01-02")))
		}
	}

	if allDay {
		return model.AllDay{Day: start}
	}
	return model.Timed{StartAt: start, EndAt: start.Add(FixtureDuration)}
}

func isTimeNotKnown(frag string) bool {
	frag = strings.TrimSpace(frag)
	return frag == "" || strings.EqualFold(frag, TimeNotKnown)
}

// parseMonthDay accepts "Mon, Jun 05", "Jun 05" or "Monday Jun 5". The
// weekday token is dropped; it carries no year information.
func parseMonthDay(frag string) (time.Month, int, error) {
	fields := strings.Fields(strings.ReplaceAll(frag, ",", " "))
	if len(fields) > 2 && isWeekdayToken(fields[0]) {
		fields = fields[1:]
	}
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("date fragment %q: expected month and day", frag)
	}
	// Year 2000 is a leap year so Feb 29 parses; per-year existence is
	// checked when the candidate instant is built.
	t, err := time.Parse("2006 Jan 2", "2000 "+fields[0]+" "+fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("date fragment %q: %w", frag, err)
	}
	return t.Month(), t.Day(), nil
}

func isWeekdayToken(tok string) bool {
	tok = strings.ToLower(tok)
	if len(tok) < 3 {
		return false
	}
	for _, p := range weekdayPrefixes {
		if strings.HasPrefix(tok, p) {
			return true
		}
	}
	return false
}

func parseClock(frag string) (hour, minute int, err error) {
	frag = strings.ToUpper(strings.TrimSpace(frag))
	for _, layout := range clockLayouts {
		t, perr := time.Parse(layout, frag)
		if perr == nil {
			return t.Hour(), t.Minute(), nil
		}
		err = perr
	}
	return 0, 0, fmt.Errorf("time fragment %q: %w", frag, err)
}
