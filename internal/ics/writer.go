package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"fixcal/internal/model"
)

const productID = "-//fixcal//Fixture Calendar//EN"

var (
	ErrNoStart        = errors.New("event has no resolvable start")
	ErrEndBeforeStart = errors.New("event ends before it starts")
)

// CalendarInfo carries the feed-level properties.
type CalendarInfo struct {
	Name   string
	Source string
	// Timezone is the IANA name advertised to clients; instants are
	// always written in UTC.
	Timezone        string
	RefreshInterval time.Duration
}

// Writer accumulates events into one VCALENDAR. A rejected event never
// affects the ones already appended or the ones that follow.
type Writer struct {
	cal    *ical.Calendar
	stamp  time.Time
	logger *zap.Logger
	count  int
}

// NewWriter starts a calendar. stamp is written as DTSTAMP on every event.
func NewWriter(info CalendarInfo, stamp time.Time, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if info.Name != "" {
		cal.SetName(info.Name)
	}
	if info.Source != "" {
		cal.SetUrl(info.Source)
	}
	if info.Timezone != "" {
		cal.SetXWRTimezone(info.Timezone)
	}
	if info.RefreshInterval > 0 {
		d := isoDuration(info.RefreshInterval)
		cal.SetRefreshInterval(d)
		cal.SetXPublishedTTL(d)
	}
	return &Writer{cal: cal, stamp: stamp.UTC(), logger: logger}
}

// Append validates ev and adds it to the calendar.
func (w *Writer) Append(ev model.ResolvedEvent) error {
	start := ev.Start()
	if start.IsZero() {
		return fmt.Errorf("event %q: %w", ev.UID, ErrNoStart)
	}

	vev := ical.NewEvent(ev.UID)
	vev.SetDtStampTime(w.stamp)
	if ev.AllDay() {
		vev.SetAllDayStartAt(start)
		vev.SetAllDayEndAt(start.AddDate(0, 0, 1))
	} else {
		end, _ := ev.End()
		if end.Before(start) {
			return fmt.Errorf("event %q: %w", ev.UID, ErrEndBeforeStart)
		}
		vev.SetStartAt(start)
		vev.SetEndAt(end)
	}
	vev.SetSummary(ev.Summary)
	if ev.Description != "" {
		vev.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		vev.SetLocation(ev.Location)
	}
	if ev.Placeholder {
		vev.SetStatus(ical.ObjectStatusTentative)
	} else {
		vev.SetStatus(ical.ObjectStatusConfirmed)
	}

	w.cal.AddVEvent(vev)
	w.count++
	return nil
}

// AppendAll appends each event independently. Failures are logged and
// returned; the remaining events are still written.
func (w *Writer) AppendAll(events []model.ResolvedEvent) (int, []error) {
	var errs []error
	n := 0
	for _, ev := range events {
		if err := w.Append(ev); err != nil {
			w.logger.Warn("event skipped during serialization",
				zap.String("uid", ev.UID), zap.String("summary", ev.Summary), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errs
}

// Len returns the number of events written so far.
func (w *Writer) Len() int {
	return w.count
}

// WriteTo writes the calendar with CRLF line endings.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	cw := &countingWriter{w: out}
	err := w.cal.SerializeTo(cw, ical.WithNewLineWindows)
	return cw.n, err
}

func (w *Writer) Serialize() string {
	return w.cal.Serialize(ical.WithNewLineWindows)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// isoDuration renders d as an RFC 5545 duration, e.g. PT12H or P1D.
func isoDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute

	var b strings.Builder
	b.WriteString("P")
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if h > 0 || m > 0 {
		b.WriteString("T")
		if h > 0 {
			fmt.Fprintf(&b, "%dH", h)
		}
		if m > 0 {
			fmt.Fprintf(&b, "%dM", m)
		}
	}
	if b.Len() == 1 {
		return "PT0M"
	}
	return b.String()
}
