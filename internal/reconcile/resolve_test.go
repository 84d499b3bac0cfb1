package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fixcal/internal/clock"
	"fixcal/internal/model"
)

var sydney = time.FixedZone("AEST", 10*60*60)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, sydney)
}

func newTestResolver(policy YearPolicy) (*Resolver, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	clk := clock.NewFixed(time.Date(2025, time.March, 1, 12, 0, 0, 0, sydney))
	return NewResolver(sydney, policy, clk, zap.New(core)), logs
}

func splitSeason() []model.SeasonInterval {
	return []model.SeasonInterval{
		{Start: day(2023, time.June, 1), End: day(2023, time.August, 31)},
		{Start: day(2024, time.February, 1), End: day(2024, time.April, 30)},
	}
}

func TestResolveFallsBackToFormationYear(t *testing.T) {
	r, logs := newTestResolver(nil)

	timing := r.Resolve("Mon, Jun 05", "09:05 PM", "2023", nil)

	timed, ok := timing.(model.Timed)
	require.True(t, ok, "expected a timed occasion")
	assert.True(t, timed.StartAt.Equal(time.Date(2023, time.June, 5, 21, 5, 0, 0, sydney)))
	assert.Equal(t, time.Hour, timed.EndAt.Sub(timed.StartAt))
	assert.Equal(t, 1, logs.FilterMessage("no season intervals; using formation year").Len())
}

func TestResolveNotKnownTimeIsAllDay(t *testing.T) {
	r, _ := newTestResolver(nil)

	for _, frag := range []string{"NA", "na", " NA ", ""} {
		timing := r.Resolve("Mon, Jun 05", frag, "2023", nil)
		allDay, ok := timing.(model.AllDay)
		require.True(t, ok, "fragment %q", frag)
		assert.True(t, allDay.IsAllDay())
		assert.Equal(t, model.Date{Year: 2023, Month: time.June, Day: 5}, model.DateOf(allDay.Day))

		ev := model.ResolvedEvent{Timing: timing}
		_, hasEnd := ev.End()
		assert.False(t, hasEnd)
	}
}

func TestResolveTimedFixturesLastOneHour(t *testing.T) {
	r, _ := newTestResolver(nil)

	for _, frag := range []string{"09:05 PM", "9:05 PM", "11:59 PM", "12:00 AM", "18:30"} {
		timed, ok := r.Resolve("Fri, Dec 29", frag, "2023", nil).(model.Timed)
		require.True(t, ok, "fragment %q", frag)
		assert.Equal(t, time.Hour, timed.EndAt.Sub(timed.StartAt), "fragment %q", frag)
	}
}

func TestResolveBoundingWindowPicksLowestYearInWindow(t *testing.T) {
	r, logs := newTestResolver(BoundingWindowPolicy{})

	timed, ok := r.Resolve("Wed, Feb 14", "07:00 PM", "2019", splitSeason()).(model.Timed)
	require.True(t, ok)
	assert.True(t, timed.StartAt.Equal(time.Date(2024, time.February, 14, 19, 0, 0, 0, sydney)))
	assert.Zero(t, logs.FilterMessage("year inference fell back to formation year").Len())

	// June sits in both candidate years' window range; 2023 is lower.
	timed, ok = r.Resolve("Mon, Jun 05", "07:00 PM", "2019", splitSeason()).(model.Timed)
	require.True(t, ok)
	assert.Equal(t, 2023, timed.StartAt.Year())
}

func TestResolveBoundingWindowAcceptsOffSeasonGap(t *testing.T) {
	r, _ := newTestResolver(BoundingWindowPolicy{})

	timed, ok := r.Resolve("Sun, Dec 10", "10:00 AM", "2019", splitSeason()).(model.Timed)
	require.True(t, ok)
	assert.Equal(t, 2023, timed.StartAt.Year())
}

func TestResolvePerIntervalRejectsOffSeasonGap(t *testing.T) {
	r, logs := newTestResolver(PerIntervalPolicy{})

	timed, ok := r.Resolve("Sun, Dec 10", "10:00 AM", "2019", splitSeason()).(model.Timed)
	require.True(t, ok)
	assert.Equal(t, 2019, timed.StartAt.Year())
	require.Equal(t, 1, logs.FilterMessage("year inference fell back to formation year").Len())
	entry := logs.FilterMessage("year inference fell back to formation year").All()[0]
	assert.Equal(t, PolicyPerInterval, entry.ContextMap()["policy"])

	timed, ok = r.Resolve("Wed, Feb 14", "07:00 PM", "2019", splitSeason()).(model.Timed)
	require.True(t, ok)
	assert.Equal(t, 2024, timed.StartAt.Year())
}

func TestResolveWindowEndIsInclusiveByDate(t *testing.T) {
	r, _ := newTestResolver(nil)
	season := []model.SeasonInterval{{Start: day(2023, time.June, 1), End: day(2023, time.August, 31)}}

	timed, ok := r.Resolve("Thu, Aug 31", "09:00 PM", "2010", season).(model.Timed)
	require.True(t, ok)
	assert.Equal(t, 2023, timed.StartAt.Year())
}

func TestResolveLeapDaySkipsNonLeapCandidates(t *testing.T) {
	r, _ := newTestResolver(nil)
	season := []model.SeasonInterval{{Start: day(2023, time.January, 1), End: day(2024, time.December, 31)}}

	timed, ok := r.Resolve("Thu, Feb 29", "07:00 PM", "2010", season).(model.Timed)
	require.True(t, ok)
	assert.Equal(t, model.Date{Year: 2024, Month: time.February, Day: 29}, model.DateOf(timed.StartAt))
}

func TestResolveMalformedInputsDegrade(t *testing.T) {
	r, logs := newTestResolver(nil)

	timing := r.Resolve("Mon, Jun 05", "quarter past", "2023", nil)
	allDay, ok := timing.(model.AllDay)
	require.True(t, ok)
	assert.Equal(t, model.Date{Year: 2023, Month: time.June, Day: 5}, model.DateOf(allDay.Day))
	assert.Equal(t, 1, logs.FilterMessage("fixture time unparseable; treating as all-day").Len())

	timing = r.Resolve("someday", "09:05 PM", "2023", nil)
	assert.True(t, timing.Start().IsZero())
	assert.Equal(t, 1, logs.FilterMessage("fixture date unparseable").Len())

	timed, ok := r.Resolve("Mon, Jun 05", "09:05 PM", "est. 1999", nil).(model.Timed)
	require.True(t, ok)
	assert.Equal(t, 2025, timed.StartAt.Year())
	assert.Equal(t, 1, logs.FilterMessage("formation year unparseable; using current year").Len())
}

func TestParseMonthDayStripsWeekday(t *testing.T) {
	for _, frag := range []string{"Mon, Jun 05", "Jun 05", "Monday Jun 5", "mon, jun 5"} {
		m, d, err := parseMonthDay(frag)
		require.NoError(t, err, frag)
		assert.Equal(t, time.June, m, frag)
		assert.Equal(t, 5, d, frag)
	}
	_, _, err := parseMonthDay("Mon, Jun")
	assert.Error(t, err)
}

func TestParseYearPolicy(t *testing.T) {
	p, err := ParseYearPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBoundingWindow, p.Name())

	p, err = ParseYearPolicy("Per_Interval")
	require.NoError(t, err)
	assert.Equal(t, PolicyPerInterval, p.Name())

	_, err = ParseYearPolicy("nearest")
	assert.Error(t, err)
}
