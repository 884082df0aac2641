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

	// HTTP request latency per request. Watch for: p95/p99 increases; predictions block on two upstreams.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// open-meteo call rate by outcome. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// open-meteo latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts against open-meteo. High retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Alert feed scrapes by outcome. One scrape walks the whole office tree.
	AlertFeedFetchesTotal *prometheus.CounterVec

	// Per-office failures inside an otherwise successful scrape.
	AlertOfficeErrorsTotal prometheus.Counter

	// CAP documents successfully parsed per scrape cycle.
	AlertDocumentsParsedTotal prometheus.Counter

	// Alert-set cache hits. Misses trigger a full directory-tree scrape.
	AlertCacheHitsTotal prometheus.Counter

	// Served day predictions. rate() gives prediction QPS x 5 weekdays.
	PredictionsTotal prometheus.Counter

	// Times an alert severity floor overrode the model probability, by alert type.
	SeverityFloorAppliedTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state transitions by component.
	circuitBreakerTransitionsTotal *prometheus.CounterVec

	// Circuit breaker current state (0 closed, 1 open, 2 half-open).
	circuitBreakerState *prometheus.GaugeVec
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total calls to the open-meteo endpoints by outcome",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "open-meteo call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total retry attempts against open-meteo",
		},
	)
	AlertFeedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertFeedFetchesTotal",
			Help: "Total alert feed scrapes by outcome",
		},
		[]string{"result"},
	)
	AlertOfficeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alertOfficeErrorsTotal",
			Help: "Per-office fetch failures inside an alert scrape",
		},
	)
	AlertDocumentsParsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alertDocumentsParsedTotal",
			Help: "CAP alert documents successfully parsed",
		},
	)
	AlertCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alertCacheHitsTotal",
			Help: "Alert-set cache hits",
		},
	)
	PredictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictionsTotal",
			Help: "Day predictions served",
		},
	)
	SeverityFloorAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "severityFloorAppliedTotal",
			Help: "Times an alert severity floor overrode the model probability",
		},
		[]string{"alert"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Requests denied by the rate limiter",
		},
	)
	circuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		WeatherAPICallsTotal,
		WeatherAPIDuration,
		WeatherAPIRetriesTotal,
		AlertFeedFetchesTotal,
		AlertOfficeErrorsTotal,
		AlertDocumentsParsedTotal,
		AlertCacheHitsTotal,
		PredictionsTotal,
		SeverityFloorAppliedTotal,
		RateLimitDeniedTotal,
		circuitBreakerTransitionsTotal,
		circuitBreakerState,
	)
}

// RecordCircuitBreakerTransition records a state change for a component.
func RecordCircuitBreakerTransition(component, from, to string) {
	circuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerState sets the state gauge for a component.
func SetCircuitBreakerState(component string, state int) {
	circuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns the /metrics endpoint handler for the service registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
