package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	ical "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fixcal/internal/apperr"
	"fixcal/internal/clock"
	"fixcal/internal/config"
	"fixcal/internal/metadata"
	"fixcal/internal/metrics"
	"fixcal/internal/model"
	"fixcal/internal/reconcile"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubTeams struct {
	details model.TeamDetails
	err     error
	calls   int
}

func (s *stubTeams) Team(_ context.Context, centreID, teamID string) (model.TeamDetails, error) {
	s.calls++
	return s.details, s.err
}

func spikers() model.TeamDetails {
	return model.TeamDetails{
		ID:         42,
		Name:       "Spikers",
		YearFormed: "2023",
		Competitions: []model.Competition{
			{SeasonName: "2023 Winter", DivisionName: "Div 1B", SportName: "Volleyball"},
		},
		Upcoming: []model.Match{{
			MatchID:   1001,
			HomeTeam:  model.Team{ID: 42, Name: "Spikers"},
			AwayTeam:  model.Team{ID: 7, Name: "Blockers"},
			CourtName: "Court 3",
			MatchDate: "Thu, Jun 08",
			MatchTime: "07:00 PM",
			Round:     "2",
		}},
	}
}

type harness struct {
	srv     *Server
	teams   *stubTeams
	codec   *metadata.Codec
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	clk := clock.NewFixed(time.Date(2023, time.May, 1, 9, 0, 0, 0, sydney))
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	codec, err := metadata.NewCodec(nil, sydney)
	require.NoError(t, err)

	h := &harness{
		teams:   &stubTeams{details: spikers()},
		codec:   codec,
		metrics: metrics.New(),
		logs:    logs,
	}
	h.srv = NewServer(cfg, Deps{
		Teams:   h.teams,
		Engine:  reconcile.NewEngine(reconcile.Options{Location: sydney, Clock: clk, Logger: logger}),
		Codec:   h.codec,
		Metrics: h.metrics,
		Clock:   clk,
		Logger:  logger,
	})
	return h
}

func (h *harness) get(path string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, fn := range mutate {
		fn(req)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func juneSegment(t *testing.T, c *metadata.Codec) string {
	t.Helper()
	seg, err := c.Encode(metadata.Input{
		Location: &metadata.LocationInput{Title: "Olympic Park Stadium"},
		Timezone: "Australia/Sydney",
		SeasonIntervals: []metadata.IntervalInput{
			{Start: metadata.NewDateValue("2023-06-01"), End: metadata.NewDateValue("2023-06-29")},
		},
		FixtureTimes: &metadata.FixtureTimesInput{
			Weekday:   "TH",
			StartTime: metadata.TimeInput{Hour: 19},
			EndTime:   metadata.TimeInput{Hour: 20},
		},
	})
	require.NoError(t, err)
	return seg
}

func parseFeed(t *testing.T, body string) *ical.Calendar {
	t.Helper()
	cal, err := ical.ParseCalendar(strings.NewReader(body))
	require.NoError(t, err)
	return cal
}

func statuses(cal *ical.Calendar) map[string]int {
	out := make(map[string]int)
	for _, ev := range cal.Events() {
		if p := ev.GetProperty(ical.ComponentPropertyStatus); p != nil {
			out[p.Value]++
		}
	}
	return out
}

func TestHealthIsPublic(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "coach", Password: "secret"}
	h := newHarness(t, cfg)

	rec := h.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestCalendarWithMetadataAddsPlaceholders(t *testing.T) {
	h := newHarness(t, nil)
	seg := juneSegment(t, h.codec)

	rec := h.get("/calendar/1720/42/" + seg)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, calendarContentType, rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "X-WR-CALNAME:Spikers | 2023 Winter - Div 1B")
	assert.Contains(t, body, "X-WR-TIMEZONE:Australia/Sydney")
	assert.Contains(t, body, "example.com/calendar/1720/42/")

	cal := parseFeed(t, body)
	require.Len(t, cal.Events(), 5)
	assert.Equal(t, map[string]int{"CONFIRMED": 1, "TENTATIVE": 4}, statuses(cal))

	first := cal.Events()[0]
	assert.Equal(t, reconcile.MatchUID(1001), first.Id())
	assert.Equal(t, "Olympic Park Stadium", first.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "20230608T090000Z", first.GetProperty(ical.ComponentPropertyDtStart).Value)

	m := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(m, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, m.Body.String(), `fixcal_events_total{kind="placeholder"} 4`)
	assert.Contains(t, m.Body.String(), `fixcal_calendar_requests_total{status="200"} 1`)
}

func TestCalendarWithoutMetadataHasOnlyFixtures(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.get("/calendar/1720/42")
	require.Equal(t, http.StatusOK, rec.Code)

	cal := parseFeed(t, rec.Body.String())
	require.Len(t, cal.Events(), 1)
	assert.Contains(t, rec.Body.String(), "X-WR-TIMEZONE:Australia/Sydney")
}

func TestCalendarIgnoresUndecodableMetadata(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.get("/calendar/1720/42/not-a-valid-segment")
	require.Equal(t, http.StatusOK, rec.Code)

	cal := parseFeed(t, rec.Body.String())
	assert.Len(t, cal.Events(), 1)
	assert.Equal(t, 1, h.logs.FilterMessage("ignoring undecodable calendar metadata").Len())
}

func TestCalendarUpstreamFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.teams.err = apperr.WrapAs(apperr.ErrUpstream, assert.AnError, "")

	rec := h.get("/calendar/1720/42")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp struct {
		Error apperr.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperr.ErrUpstream.Code, resp.Error.Code)

	m := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(m, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, m.Body.String(), `fixcal_calendar_requests_total{status="502"} 1`)
}

func TestCalendarSkipsUnserializableEvents(t *testing.T) {
	h := newHarness(t, nil)
	details := spikers()
	details.Completed = []model.Match{{
		MatchID:   1000,
		HomeTeam:  model.Team{ID: 42, Name: "Spikers"},
		AwayTeam:  model.Team{ID: 9, Name: "Diggers"},
		MatchDate: "sometime",
		MatchTime: "NA",
	}}
	h.teams.details = details

	rec := h.get("/calendar/1720/42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, parseFeed(t, rec.Body.String()).Events(), 1)

	m := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(m, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, m.Body.String(), "fixcal_serialize_failures_total 1")
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "coach", Password: "secret"}
	h := newHarness(t, cfg)

	rec := h.get("/calendar/1720/42")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	assert.Zero(t, h.teams.calls)

	rec = h.get("/calendar/1720/42", func(r *http.Request) { r.SetBasicAuth("coach", "wrong") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.get("/calendar/1720/42", func(r *http.Request) { r.SetBasicAuth("coach", "secret") })
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuthDisabledWithEmptyPassword(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "coach"}
	h := newHarness(t, cfg)

	assert.Equal(t, http.StatusOK, h.get("/calendar/1720/42").Code)
}

func TestRequestIDPropagates(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.get("/health", func(r *http.Request) { r.Header.Set(requestIDHeader, "abc-123") })
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	entries := h.logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc-123", entries[0].ContextMap()["request_id"])
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.get("/health")

	rec := h.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
