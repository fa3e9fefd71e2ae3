package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Panchangam API call rate by outcome. Watch for: error vs success ratio.
	SnapshotAPICallsTotal *prometheus.CounterVec

	// Panchangam API latency per request. Watch for: p95 > 2s (upstream degradation).
	SnapshotAPIDuration *prometheus.HistogramVec

	// Retry attempts against the panchangam API. High retries = unstable upstream.
	SnapshotAPIRetriesTotal prometheus.Counter

	// Snapshot cache hits by backend. Hit rate = hits/(hits+misses).
	SnapshotCacheHitsTotal *prometheus.CounterVec

	// Superseded snapshot fetches dropped by the last-request-wins holder.
	SnapshotFetchSupersededTotal prometheus.Counter

	// Location resolutions by chain outcome (geolocation, ip, manual, default).
	LocationResolutionsTotal *prometheus.CounterVec

	// Resolver transport failures by step (device, reverse_geocode, ip).
	LocationChainFailuresTotal *prometheus.CounterVec

	// Status engine recomputation ticks. Flatlining means the ticker died.
	StatusTicksTotal prometheus.Counter

	// Calendar exports by outcome (full, partial).
	CalendarExportsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	SnapshotAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotApiCallsTotal",
			Help: "Total panchangam snapshot API calls by outcome",
		},
		[]string{"status"},
	)
	SnapshotAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshotApiDurationSeconds",
			Help:    "Panchangam snapshot API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	SnapshotAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshotApiRetriesTotal",
			Help: "Total retry attempts against the panchangam snapshot API",
		},
	)
	SnapshotCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotCacheHitsTotal",
			Help: "Snapshot cache hits",
		},
		[]string{"backend"},
	)
	SnapshotFetchSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshotFetchSupersededTotal",
			Help: "Snapshot fetches discarded because a newer request won",
		},
	)
	LocationResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationResolutionsTotal",
			Help: "Location resolutions by terminal source",
		},
		[]string{"source"},
	)
	LocationChainFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationChainFailuresTotal",
			Help: "Resolver chain step failures by step and class",
		},
		[]string{"step", "class"},
	)
	StatusTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statusTicksTotal",
			Help: "Period status recomputation ticks",
		},
	)
	CalendarExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendarExportsTotal",
			Help: "Calendar exports by completeness (full, partial)",
		},
		[]string{"result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Requests denied by the rate limiter",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		SnapshotAPICallsTotal,
		SnapshotAPIDuration,
		SnapshotAPIRetriesTotal,
		SnapshotCacheHitsTotal,
		SnapshotFetchSupersededTotal,
		LocationResolutionsTotal,
		LocationChainFailuresTotal,
		StatusTicksTotal,
		CalendarExportsTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns the /metrics handler backed by the private registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
