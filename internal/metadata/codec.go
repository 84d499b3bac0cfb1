// Package metadata decodes the season metadata segment of a calendar URL.
//
// The segment is base64url text wrapping either LZW-compressed JSON or
// plain JSON. Decoding validates the payload and converts it into
// model.Metadata with every date resolved in the metadata's timezone.
package metadata

import (
	"bytes"
	"compress/lzw"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"fixcal/internal/apperr"
	"fixcal/internal/model"
)

// maxPayload bounds the decompressed JSON size.
const maxPayload = 64 << 10

// Codec converts between URL segments and metadata.
type Codec struct {
	validate   *validator.Validate
	defaultLoc *time.Location
}

// NewCodec returns a Codec. A nil validate uses a package validator whose
// tags are registered once; otherwise the metadata tags are registered on
// validate. defaultLoc applies when the payload names no timezone.
func NewCodec(validate *validator.Validate, defaultLoc *time.Location) (*Codec, error) {
	if validate == nil {
		v, err := sharedValidator()
		if err != nil {
			return nil, err
		}
		validate = v
	} else if err := RegisterValidations(validate); err != nil {
		return nil, err
	}
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Codec{validate: validate, defaultLoc: defaultLoc}, nil
}

// RegisterValidations adds the metadata struct tags to v.
func RegisterValidations(v *validator.Validate) error {
	err := v.RegisterValidation("ical_weekday", func(fl validator.FieldLevel) bool {
		_, ok := weekdayCodes[strings.ToUpper(fl.Field().String())]
		return ok
	})
	if err != nil {
		return fmt.Errorf("register ical_weekday: %w", err)
	}
	return nil
}

var (
	sharedOnce sync.Once
	shared     *validator.Validate
	sharedErr  error
)

func sharedValidator() (*validator.Validate, error) {
	sharedOnce.Do(func() {
		shared = validator.New()
		sharedErr = RegisterValidations(shared)
	})
	return shared, sharedErr
}

// Decode parses raw into metadata. An empty segment yields nil metadata
// and no error. Every failure is an apperr.ErrInvalidMetadata.
func (c *Codec) Decode(raw string) (*model.Metadata, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	in, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}
	return c.ToModel(in)
}

// Parse decodes and validates raw without converting it.
func (c *Codec) Parse(raw string) (Input, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(raw), "="))
	if err != nil {
		return Input{}, apperr.WrapAs(apperr.ErrInvalidMetadata, err, "metadata is not base64url")
	}

	in, err := unmarshalPayload(data)
	if err != nil {
		return Input{}, apperr.WrapAs(apperr.ErrInvalidMetadata, err, "metadata is not JSON")
	}

	if err := c.validate.Struct(in); err != nil {
		return Input{}, apperr.WrapAs(apperr.ErrInvalidMetadata, err, "metadata failed validation")
	}
	return in, nil
}

// ToModel resolves dates and checks ordering constraints the struct tags
// cannot express.
func (c *Codec) ToModel(in Input) (*model.Metadata, error) {
	loc := c.defaultLoc
	if in.Timezone != "" {
		l, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return nil, apperr.WrapAs(apperr.ErrInvalidMetadata, err, "unknown timezone")
		}
		loc = l
	}

	m := &model.Metadata{Timezone: loc, Rounds: in.Rounds}
	if in.Location != nil {
		m.Location = in.Location.String()
	}

	var err error
	if m.SeasonIntervals, err = resolveIntervals("seasonIntervals", in.SeasonIntervals, loc); err != nil {
		return nil, err
	}
	if m.Breaks, err = resolveIntervals("breaks", in.Breaks, loc); err != nil {
		return nil, err
	}

	if in.CompetitionStart != nil {
		t, err := in.CompetitionStart.Resolve(loc)
		if err != nil {
			return nil, apperr.WrapAs(apperr.ErrInvalidMetadata, err, "competitionStart")
		}
		m.CompetitionStart = &t
	}

	if ft := in.FixtureTimes; ft != nil {
		start, end := ft.StartTime.model(), ft.EndTime.model()
		if start.After(end) {
			return nil, apperr.WrapAs(apperr.ErrInvalidMetadata,
				fmt.Errorf("start %s after end %s", start, end), "fixtureTimes")
		}
		m.FixtureTimes = &model.FixtureTimes{
			Weekday: weekdayCodes[strings.ToUpper(ft.Weekday)],
			Start:   start,
			End:     end,
		}
	}
	return m, nil
}

func resolveIntervals(field string, in []IntervalInput, loc *time.Location) ([]model.SeasonInterval, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]model.SeasonInterval, 0, len(in))
	for i, iv := range in {
		start, err := iv.Start.Resolve(loc)
		if err != nil {
			return nil, apperr.WrapAs(apperr.ErrInvalidMetadata, err, fmt.Sprintf("%s[%d].start", field, i))
		}
		end, err := iv.End.Resolve(loc)
		if err != nil {
			return nil, apperr.WrapAs(apperr.ErrInvalidMetadata, err, fmt.Sprintf("%s[%d].end", field, i))
		}
		si := model.SeasonInterval{Start: start, End: end}
		if !si.Valid() {
			return nil, apperr.WrapAs(apperr.ErrInvalidMetadata,
				fmt.Errorf("start %s after end %s", iv.Start, iv.End), fmt.Sprintf("%s[%d]", field, i))
		}
		out = append(out, si)
	}
	return out, nil
}

// Encode validates in and returns the compressed URL segment.
func (c *Codec) Encode(in Input) (string, error) {
	if err := c.validate.Struct(in); err != nil {
		return "", apperr.WrapAs(apperr.ErrInvalidMetadata, err, "metadata failed validation")
	}
	if _, err := c.ToModel(in); err != nil {
		return "", err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.LSB, 8)
	if _, err := w.Write(payload); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// unmarshalPayload tries the compressed form first, then plain JSON.
func unmarshalPayload(data []byte) (Input, error) {
	if payload, err := decompress(data); err == nil {
		var in Input
		if json.Unmarshal(payload, &in) == nil {
			return in, nil
		}
	}
	var in Input
	err := json.Unmarshal(data, &in)
	return in, err
}

func decompress(data []byte) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(data), lzw.LSB, 8)
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxPayload+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxPayload {
		return nil, fmt.Errorf("metadata exceeds %d bytes", maxPayload)
	}
	return out, nil
}
