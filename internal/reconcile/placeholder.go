package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"fixcal/internal/model"
)

// PlaceholderRequest is the input to one synthesis pass.
type PlaceholderRequest struct {
	Intervals []model.SeasonInterval
	// Breaks are ranges inside a season with no play (holidays, finals
	// byes). No placeholder is produced on a date inside a break.
	Breaks []model.SeasonInterval
	Known  *KnownDates

	Start model.TimeOfDay
	End   model.TimeOfDay

	Now      time.Time
	Location *time.Location

	Team  string
	Sport string
	Venue string
}

// Synthesizer produces placeholder events for weekly slots inside season
// intervals that have no published fixture yet.
type Synthesizer struct {
	logger *zap.Logger

	// MergeOverlapping suppresses a date already emitted by an earlier
	// interval. When false, overlapping intervals each emit their own
	// placeholder for the shared date.
	MergeOverlapping bool
}

// NewSynthesizer returns a Synthesizer logging to logger.
func NewSynthesizer(logger *zap.Logger, mergeOverlapping bool) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{logger: logger, MergeOverlapping: mergeOverlapping}
}

// Synthesize walks each interval at a 7-day stride from its start date to
// its end date inclusive. Intervals are processed independently, in order.
func (s *Synthesizer) Synthesize(req PlaceholderRequest) []model.ResolvedEvent {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	known := req.Known
	if known == nil {
		known = NewKnownDates(s.logger)
	}

	slotEnd := req.End
	fixedDuration := false
	if req.Start.After(req.End) {
		s.logger.Warn("placeholder end time before start time; using fixed duration",
			zap.Stringer("start", req.Start), zap.Stringer("end", req.End))
		fixedDuration = true
	}

	today := model.DateOf(req.Now.In(loc))
	emitted := make(map[model.Date]struct{})
	out := make([]model.ResolvedEvent, 0)

	for idx, iv := range req.Intervals {
		if !iv.Valid() {
			s.logger.Warn("season interval skipped: start after end or unset",
				zap.Int("interval", idx), zap.Time("start", iv.Start), zap.Time("end", iv.End))
			continue
		}

		for _, cursor := range weeklyCursors(iv, loc) {
			date := model.DateOf(cursor)
			if known.Contains(date) {
				continue
			}
			if date.Before(today) {
				continue
			}
			if inBreak(date, req.Breaks, loc) {
				continue
			}
			if s.MergeOverlapping {
				if _, dup := emitted[date]; dup {
					continue
				}
			}
			emitted[date] = struct{}{}

			start := req.Start.On(date, loc)
			end := slotEnd.On(date, loc)
			if fixedDuration {
				end = start.Add(FixtureDuration)
			}
			out = append(out, model.ResolvedEvent{
				UID:         PlaceholderUID(idx, date),
				Timing:      model.Timed{StartAt: start, EndAt: end},
				Summary:     fmt.Sprintf("%s | %s - Placeholder", req.Team, req.Sport),
				Description: placeholderDescription(req.Team),
				Location:    req.Venue,
				Placeholder: true,
			})
		}
	}

	return out
}

// weeklyCursors returns midnight of every 7th day from the interval's
// start date through its end date, both inclusive, in loc.
func weeklyCursors(iv model.SeasonInterval, loc *time.Location) []time.Time {
	first := model.DateOf(iv.Start.In(loc)).In(loc)
	last := model.DateOf(iv.End.In(loc)).In(loc)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: first,
		Until:   last,
	})
	if err != nil {
		// Only reachable with a malformed option set; fall back to a plain walk.
		var out []time.Time
		for c := first; !c.After(last); c = c.AddDate(0, 0, 7) {
			out = append(out, c)
		}
		return out
	}
	return r.All()
}

func inBreak(d model.Date, breaks []model.SeasonInterval, loc *time.Location) bool {
	for _, b := range breaks {
		if b.Valid() && b.ContainsDate(d, loc) {
			return true
		}
	}
	return false
}

// PlaceholderUID is the stable UID for the placeholder of interval idx on d.
func PlaceholderUID(idx int, d model.Date) string {
	return uuid.NewSHA1(uidNamespace, []byte(fmt.Sprintf("placeholder:%d:%s", idx, d))).String() + "@fixcal"
}

func placeholderDescription(team string) string {
	return fmt.Sprintf("The fixture for %s in this round has not been posted yet. "+
		"This entry will be replaced once the draw is published.\n\n%s", team, Trailer)
}
