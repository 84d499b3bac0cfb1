package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fixcal/internal/model"
)

// Input is the wire shape of the season metadata carried in a feed URL.
type Input struct {
	Location         *LocationInput     `json:"location,omitempty"`
	Timezone         string             `json:"timezone,omitempty" validate:"omitempty,timezone"`
	SeasonIntervals  []IntervalInput    `json:"seasonIntervals,omitempty" validate:"omitempty,dive"`
	Breaks           []IntervalInput    `json:"breaks,omitempty" validate:"omitempty,dive"`
	CompetitionStart *DateValue         `json:"competitionStart,omitempty"`
	Rounds           int                `json:"nRounds,omitempty" validate:"min=0,max=520"`
	FixtureTimes     *FixtureTimesInput `json:"fixtureTimes,omitempty"`
}

// LocationInput accepts either a bare string or {"title", "address"}.
type LocationInput struct {
	Title   string `json:"title" validate:"required"`
	Address string `json:"address,omitempty"`
}

func (l *LocationInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.Title, l.Address = s, ""
		return nil
	}
	type plain LocationInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("location: expected string or object: %w", err)
	}
	*l = LocationInput(p)
	return nil
}

func (l LocationInput) String() string {
	if l.Address == "" {
		return l.Title
	}
	return l.Title + ", " + l.Address
}

type IntervalInput struct {
	Start DateValue `json:"start"`
	End   DateValue `json:"end"`
}

type TimeInput struct {
	Hour   int `json:"hour" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

func (t TimeInput) model() model.TimeOfDay {
	return model.TimeOfDay{Hour: t.Hour, Minute: t.Minute}
}

type FixtureTimesInput struct {
	Weekday   string    `json:"weekday" validate:"required,ical_weekday"`
	StartTime TimeInput `json:"startTime"`
	EndTime   TimeInput `json:"endTime"`
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// WeekdayCode returns the iCalendar two-letter code for d.
func WeekdayCode(d time.Weekday) string {
	for code, wd := range weekdayCodes {
		if wd == d {
			return code
		}
	}
	return ""
}

// DateValue is a date supplied as an RFC 3339 timestamp, a YYYY-MM-DD day
// (interpreted in the metadata timezone) or epoch milliseconds.
type DateValue struct {
	raw    string
	millis *int64
}

// NewDateValue wraps a textual date.
func NewDateValue(raw string) DateValue {
	return DateValue{raw: raw}
}

// DateValueOf encodes t as RFC 3339.
func DateValueOf(t time.Time) DateValue {
	return DateValue{raw: t.Format(time.RFC3339)}
}

func (d *DateValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = DateValue{raw: strings.TrimSpace(s)}
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("date: expected string or epoch milliseconds: %w", err)
	}
	*d = DateValue{millis: &ms}
	return nil
}

func (d DateValue) MarshalJSON() ([]byte, error) {
	if d.millis != nil {
		return []byte(strconv.FormatInt(*d.millis, 10)), nil
	}
	return json.Marshal(d.raw)
}

// Resolve returns the instant d denotes. Day-only values are midnight in loc.
func (d DateValue) Resolve(loc *time.Location) (time.Time, error) {
	if d.millis != nil {
		return time.UnixMilli(*d.millis).In(loc), nil
	}
	if d.raw == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if t, err := time.Parse(time.RFC3339, d.raw); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", d.raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: expected RFC 3339, YYYY-MM-DD or epoch milliseconds", d.raw)
	}
	return t, nil
}

func (d DateValue) String() string {
	if d.millis != nil {
		return strconv.FormatInt(*d.millis, 10)
	}
	return d.raw
}
