package reconcile

import (
	"time"

	"go.uber.org/zap"

	"fixcal/internal/clock"
	"fixcal/internal/model"
)

// Options configures an Engine. Zero values are usable: UTC, bounding
// window year policy, 19:00-20:00 placeholder slots, system clock and a
// no-op logger.
type Options struct {
	Location   *time.Location
	YearPolicy YearPolicy

	// DefaultStart/DefaultEnd time placeholders when the metadata has no
	// fixture times.
	DefaultStart model.TimeOfDay
	DefaultEnd   model.TimeOfDay

	MergeOverlapping bool

	Clock  clock.Clock
	Logger *zap.Logger
}

var (
	defaultSlotStart = model.TimeOfDay{Hour: 19}
	defaultSlotEnd   = model.TimeOfDay{Hour: 20}
)

// Engine reconciles a team's fixtures with its season metadata. Each call
// to Reconcile owns its own state, so one Engine may serve concurrent
// requests.
type Engine struct {
	opts   Options
	mapper Mapper
	synth  *Synthesizer
	logger *zap.Logger
}

// NewEngine applies defaults to opts and returns an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.YearPolicy == nil {
		opts.YearPolicy = BoundingWindowPolicy{}
	}
	if opts.DefaultStart == (model.TimeOfDay{}) && opts.DefaultEnd == (model.TimeOfDay{}) {
		opts.DefaultStart = defaultSlotStart
		opts.DefaultEnd = defaultSlotEnd
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		opts:   opts,
		synth:  NewSynthesizer(opts.Logger, opts.MergeOverlapping),
		logger: opts.Logger,
	}
}

// Reconcile maps every upcoming then completed fixture, in source order,
// and appends placeholders for uncovered weekly slots when meta is
// present. Real events always precede placeholders.
func (e *Engine) Reconcile(details model.TeamDetails, meta *model.Metadata) []model.ResolvedEvent {
	loc := e.opts.Location
	if meta != nil && meta.Timezone != nil {
		loc = meta.Timezone
	}
	resolver := NewResolver(loc, e.opts.YearPolicy, e.opts.Clock, e.logger)
	intervals := meta.Intervals()
	location := ""
	if meta != nil {
		location = meta.Location
	}

	team := details.Identity()
	known := NewKnownDates(e.logger)

	fixtures := make([]model.Match, 0, len(details.Upcoming)+len(details.Completed))
	fixtures = append(fixtures, details.Upcoming...)
	fixtures = append(fixtures, details.Completed...)

	events := make([]model.ResolvedEvent, 0, len(fixtures))
	for _, m := range fixtures {
		timing := resolver.Resolve(m.MatchDate, m.MatchTime, details.YearFormed, intervals)
		ev := e.mapper.Map(team, m, timing, location)
		known.Record(ev)
		events = append(events, ev)
	}

	if meta == nil {
		e.logger.Debug("no season metadata; placeholders disabled",
			zap.Int("team_id", details.ID), zap.Int("fixtures", len(events)))
		return events
	}

	start, end := e.opts.DefaultStart, e.opts.DefaultEnd
	if meta.FixtureTimes != nil {
		start, end = meta.FixtureTimes.Start, meta.FixtureTimes.End
	}

	placeholders := e.synth.Synthesize(PlaceholderRequest{
		Intervals: intervals,
		Breaks:    meta.Breaks,
		Known:     known,
		Start:     start,
		End:       end,
		Now:       e.opts.Clock.Now(),
		Location:  loc,
		Team:      details.Name,
		Sport:     details.SportName(),
		Venue:     location,
	})

	e.logger.Debug("reconciled fixtures",
		zap.Int("team_id", details.ID),
		zap.Int("fixtures", len(events)),
		zap.Int("known_dates", known.Len()),
		zap.Int("placeholders", len(placeholders)))

	return append(events, placeholders...)
}
