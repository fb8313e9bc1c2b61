// Package metrics holds the Prometheus instruments of the match service.
//
// Instruments live on a Metrics value instead of package globals so tests can
// build isolated instances; main registers one instance explicitly.
// Every method is safe on a nil receiver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jobmate_match"

// Metrics groups the discovery pipeline instruments.
type Metrics struct {
	SourceFetchTotal    *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec
	PostingsDropped     *prometheus.CounterVec
	DiscoveryTotal      *prometheus.CounterVec
	DiscoveryDuration   prometheus.Histogram
	CacheWrites         *prometheus.CounterVec
	CacheQueueDropped   prometheus.Counter
	QueryCacheLookups   *prometheus.CounterVec
}

// New creates unregistered instruments.
func New() *Metrics {
	return &Metrics{
		SourceFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Source fetches by source and outcome",
			},
			[]string{"source", "status"}, // ok | incomplete | failed | skipped
		),
		SourceFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_fetch_duration_seconds",
				Help:      "Source fetch duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"source"},
		),
		PostingsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postings_dropped_total",
				Help:      "Postings dropped before ranking, by reason",
			},
			[]string{"reason"}, // invalid | transform | red_flag | duplicate | expired | below_threshold
		),
		DiscoveryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_requests_total",
				Help:      "Discovery requests by outcome",
			},
			[]string{"outcome"}, // complete | partial | failed | invalid
		),
		DiscoveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "discovery_duration_seconds",
				Help:      "End-to-end discovery duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 15, 20},
			},
		),
		CacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Cache-on-read posting writes by result",
			},
			[]string{"result"}, // written | known | failed
		),
		CacheQueueDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writer_queue_dropped_total",
				Help:      "Cache write jobs dropped because the queue was full",
			},
		),
		QueryCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_cache_lookups_total",
				Help:      "Warm-query lookups by result",
			},
			[]string{"result"}, // hit | miss | error
		),
	}
}

// MustRegister registers every instrument with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.SourceFetchTotal,
		m.SourceFetchDuration,
		m.PostingsDropped,
		m.DiscoveryTotal,
		m.DiscoveryDuration,
		m.CacheWrites,
		m.CacheQueueDropped,
		m.QueryCacheLookups,
	)
}

// ObserveFetch records one source fetch.
func (m *Metrics) ObserveFetch(source, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetchTotal.WithLabelValues(source, status).Inc()
	if status != "skipped" {
		m.SourceFetchDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

// Dropped adds n dropped postings for reason.
func (m *Metrics) Dropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PostingsDropped.WithLabelValues(reason).Add(float64(n))
}

// ObserveDiscovery records one discovery request.
func (m *Metrics) ObserveDiscovery(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.DiscoveryTotal.WithLabelValues(outcome).Inc()
	m.DiscoveryDuration.Observe(d.Seconds())
}

// CacheWrite adds n cache writes with result.
func (m *Metrics) CacheWrite(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheWrites.WithLabelValues(result).Add(float64(n))
}

// CacheJobDropped counts a job rejected by a full writer queue.
func (m *Metrics) CacheJobDropped() {
	if m == nil {
		return
	}
	m.CacheQueueDropped.Inc()
}

// QueryCacheLookup counts a warm-query lookup.
func (m *Metrics) QueryCacheLookup(result string) {
	if m == nil {
		return
	}
	m.QueryCacheLookups.WithLabelValues(result).Inc()
}
