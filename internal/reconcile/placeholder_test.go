package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fixcal/internal/model"
)

func june2023() []model.SeasonInterval {
	return []model.SeasonInterval{{Start: day(2023, time.June, 1), End: day(2023, time.June, 30)}}
}

func baseRequest() PlaceholderRequest {
	return PlaceholderRequest{
		Intervals: june2023(),
		Known:     NewKnownDates(nil),
		Start:     model.TimeOfDay{Hour: 19},
		End:       model.TimeOfDay{Hour: 20},
		Now:       time.Date(2023, time.May, 1, 9, 0, 0, 0, sydney),
		Location:  sydney,
		Team:      "Spikers",
		Sport:     "Volleyball",
		Venue:     "Court 3",
	}
}

func placeholderDates(events []model.ResolvedEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, model.DateOf(ev.Start()).String())
	}
	return out
}

func TestSynthesizeSkipsKnownDates(t *testing.T) {
	req := baseRequest()
	req.Known.Record(model.ResolvedEvent{
		UID:    MatchUID(1),
		Timing: model.Timed{StartAt: time.Date(2023, time.June, 8, 19, 0, 0, 0, sydney)},
	})

	got := NewSynthesizer(nil, false).Synthesize(req)

	assert.Equal(t, []string{"2023-06-01", "2023-06-15", "2023-06-22", "2023-06-29"}, placeholderDates(got))
	for _, ev := range got {
		assert.True(t, ev.Placeholder)
		assert.Equal(t, "Spikers | Volleyball - Placeholder", ev.Summary)
		assert.Equal(t, "Court 3", ev.Location)
		assert.Contains(t, ev.Description, Trailer)
		end, ok := ev.End()
		require.True(t, ok)
		assert.Equal(t, 19, ev.Start().Hour())
		assert.Equal(t, time.Hour, end.Sub(ev.Start()))
	}
}

func TestSynthesizeAllDayFixtureOccupiesItsDate(t *testing.T) {
	req := baseRequest()
	req.Known.Record(model.ResolvedEvent{Timing: model.AllDay{Day: day(2023, time.June, 15)}})

	got := NewSynthesizer(nil, false).Synthesize(req)

	assert.NotContains(t, placeholderDates(got), "2023-06-15")
	assert.Len(t, got, 4)
}

func TestSynthesizeNeverBackfillsPastDates(t *testing.T) {
	req := baseRequest()
	req.Now = time.Date(2023, time.June, 16, 10, 0, 0, 0, sydney)

	got := NewSynthesizer(nil, false).Synthesize(req)
	assert.Equal(t, []string{"2023-06-22", "2023-06-29"}, placeholderDates(got))

	// Today still counts even after the slot has started.
	req.Now = time.Date(2023, time.June, 22, 23, 0, 0, 0, sydney)
	got = NewSynthesizer(nil, false).Synthesize(req)
	assert.Equal(t, []string{"2023-06-22", "2023-06-29"}, placeholderDates(got))
}

func TestSynthesizeNowIsObservedInCalendarZone(t *testing.T) {
	req := baseRequest()
	// 2023-06-14 15:00 UTC is already 2023-06-15 01:00 in the calendar zone.
	req.Now = time.Date(2023, time.June, 14, 15, 0, 0, 0, time.UTC)

	got := NewSynthesizer(nil, false).Synthesize(req)
	assert.Equal(t, []string{"2023-06-15", "2023-06-22", "2023-06-29"}, placeholderDates(got))
}

func TestSynthesizeHonoursBreaks(t *testing.T) {
	req := baseRequest()
	req.Breaks = []model.SeasonInterval{{Start: day(2023, time.June, 14), End: day(2023, time.June, 22)}}

	got := NewSynthesizer(nil, false).Synthesize(req)
	assert.Equal(t, []string{"2023-06-01", "2023-06-08", "2023-06-29"}, placeholderDates(got))
}

func TestSynthesizeOverlappingIntervals(t *testing.T) {
	req := baseRequest()
	req.Intervals = []model.SeasonInterval{
		{Start: day(2023, time.June, 1), End: day(2023, time.June, 30)},
		{Start: day(2023, time.June, 15), End: day(2023, time.July, 6)},
	}

	separate := NewSynthesizer(nil, false).Synthesize(req)
	assert.Equal(t, []string{
		"2023-06-01", "2023-06-08", "2023-06-15", "2023-06-22", "2023-06-29",
		"2023-06-15", "2023-06-22", "2023-06-29", "2023-07-06",
	}, placeholderDates(separate))
	assert.NotEqual(t, separate[2].UID, separate[5].UID)

	merged := NewSynthesizer(nil, true).Synthesize(req)
	assert.Equal(t, []string{
		"2023-06-01", "2023-06-08", "2023-06-15", "2023-06-22", "2023-06-29", "2023-07-06",
	}, placeholderDates(merged))
}

func TestSynthesizeStrideAnchorsOnIntervalStart(t *testing.T) {
	req := baseRequest()
	// Saturday start; the stride stays on Saturdays.
	req.Intervals = []model.SeasonInterval{{Start: day(2023, time.June, 3), End: day(2023, time.June, 17)}}

	got := NewSynthesizer(nil, false).Synthesize(req)
	require.Len(t, got, 3)
	for _, ev := range got {
		assert.Equal(t, time.Saturday, ev.Start().Weekday())
	}
	assert.Equal(t, "2023-06-17", placeholderDates(got)[2])
}

func TestSynthesizeSingleDayInterval(t *testing.T) {
	req := baseRequest()
	req.Intervals = []model.SeasonInterval{{
		Start: time.Date(2023, time.June, 10, 8, 0, 0, 0, sydney),
		End:   time.Date(2023, time.June, 10, 9, 0, 0, 0, sydney),
	}}

	got := NewSynthesizer(nil, false).Synthesize(req)
	assert.Equal(t, []string{"2023-06-10"}, placeholderDates(got))
}

func TestSynthesizeDiagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	req := baseRequest()
	req.Start = model.TimeOfDay{Hour: 20, Minute: 30}
	req.End = model.TimeOfDay{Hour: 19}
	req.Intervals = append(req.Intervals, model.SeasonInterval{
		Start: day(2023, time.July, 30),
		End:   day(2023, time.July, 1),
	})

	got := NewSynthesizer(zap.New(core), false).Synthesize(req)

	require.Len(t, got, 5)
	for _, ev := range got {
		end, _ := ev.End()
		assert.Equal(t, FixtureDuration, end.Sub(ev.Start()))
	}
	assert.Equal(t, 1, logs.FilterMessage("placeholder end time before start time; using fixed duration").Len())
	assert.Equal(t, 1, logs.FilterMessage("season interval skipped: start after end or unset").Len())
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	req := baseRequest()
	a := NewSynthesizer(nil, false).Synthesize(req)
	b := NewSynthesizer(nil, false).Synthesize(req)
	assert.Equal(t, a, b)

	uids := make(map[string]struct{}, len(a))
	for _, ev := range a {
		uids[ev.UID] = struct{}{}
	}
	assert.Len(t, uids, len(a))
}

func TestSynthesizeNoIntervals(t *testing.T) {
	req := baseRequest()
	req.Intervals = nil
	assert.Empty(t, NewSynthesizer(nil, false).Synthesize(req))
}
