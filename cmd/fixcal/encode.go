package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"fixcal/internal/metadata"
	"fixcal/internal/model"
)

// intervalList collects repeated "start/end" flags.
type intervalList []metadata.IntervalInput

func (l *intervalList) String() string {
	parts := make([]string, 0, len(*l))
	for _, iv := range *l {
		parts = append(parts, iv.Start.String()+"/"+iv.End.String())
	}
	return strings.Join(parts, ",")
}

func (l *intervalList) Set(v string) error {
	start, end, ok := strings.Cut(v, "/")
	if !ok || start == "" || end == "" {
		return fmt.Errorf("want start/end, got %q", v)
	}
	*l = append(*l, metadata.IntervalInput{
		Start: metadata.NewDateValue(start),
		End:   metadata.NewDateValue(end),
	})
	return nil
}

// runEncode prints the metadata URL segment described by args.
func runEncode(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		location         = fs.String("location", "", "Venue title")
		address          = fs.String("address", "", "Venue address")
		timezone         = fs.String("timezone", "", "IANA timezone of the competition")
		start            = fs.String("start", "", "Fixture start time, HH:MM")
		end              = fs.String("end", "", "Fixture end time, HH:MM")
		weekday          = fs.String("weekday", "", "Fixture weekday, MO..SU")
		competitionStart = fs.String("competition-start", "", "First round date, YYYY-MM-DD")
		rounds           = fs.Int("rounds", 0, "Number of weekly rounds from -competition-start")
	)
	var intervals, breaks intervalList
	fs.Var(&intervals, "interval", "Season interval start/end, repeatable")
	fs.Var(&breaks, "break", "Break start/end, repeatable")

	if err := fs.Parse(args); err != nil {
		return err
	}

	in := metadata.Input{
		Timezone:        *timezone,
		SeasonIntervals: intervals,
		Breaks:          breaks,
		Rounds:          *rounds,
	}
	if *location != "" {
		in.Location = &metadata.LocationInput{Title: *location, Address: *address}
	}
	if *competitionStart != "" {
		v := metadata.NewDateValue(*competitionStart)
		in.CompetitionStart = &v
	}

	if *start != "" || *end != "" || *weekday != "" {
		if *start == "" || *end == "" || *weekday == "" {
			return errors.New("-start, -end and -weekday must be given together")
		}
		st, err := model.ParseTimeOfDay(*start)
		if err != nil {
			return err
		}
		et, err := model.ParseTimeOfDay(*end)
		if err != nil {
			return err
		}
		in.FixtureTimes = &metadata.FixtureTimesInput{
			Weekday:   strings.ToUpper(*weekday),
			StartTime: metadata.TimeInput{Hour: st.Hour, Minute: st.Minute},
			EndTime:   metadata.TimeInput{Hour: et.Hour, Minute: et.Minute},
		}
	}

	codec, err := metadata.NewCodec(nil, time.UTC)
	if err != nil {
		return err
	}
	seg, err := codec.Encode(in)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, seg)
	return err
}
