// Package metrics holds the Prometheus collectors for the calendar service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fixcal"

// Cache lookup outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	calendarRequests  *prometheus.CounterVec
	events            *prometheus.CounterVec
	serializeFailures prometheus.Counter
	cacheLookups      *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	calendarRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calendar_requests_total",
		Help:      "Calendar feed requests by response status.",
	}, []string{"status"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events written to calendar feeds.",
	}, []string{"kind"})

	serializeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "serialize_failures_total",
		Help:      "Events dropped because they could not be serialized.",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Team detail cache lookups by result.",
	}, []string{"result"})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fixture_fetch_seconds",
		Help:      "Latency of fixture provider requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	registry.MustRegister(calendarRequests, events, serializeFailures, cacheLookups, fetchDuration,
		collectors.NewGoCollector())

	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		calendarRequests:  calendarRequests,
		events:            events,
		serializeFailures: serializeFailures,
		cacheLookups:      cacheLookups,
		fetchDuration:     fetchDuration,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) CalendarRequest(status int) {
	if m == nil {
		return
	}
	m.calendarRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Events records the number of real and placeholder events in one feed.
func (m *Metrics) Events(fixtures, placeholders int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues("fixture").Add(float64(fixtures))
	m.events.WithLabelValues("placeholder").Add(float64(placeholders))
}

func (m *Metrics) SerializeFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.serializeFailures.Add(float64(n))
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// FixtureFetch observes one provider round trip. outcome is "ok",
// "cached" or "error".
func (m *Metrics) FixtureFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
