package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// HTTPRateLimited counts requests rejected by the rate limiter
	HTTPRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
	)

	// RouteSearches counts planner calls by kind (routes, evacuate) and outcome
	RouteSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_searches_total", Help: "Route planner calls by kind and outcome."},
		[]string{"kind", "outcome"},
	)
	// RouteSearchDuration records planner latency in seconds
	RouteSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_search_duration_seconds", Help: "Route planner latency in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5}},
		[]string{"kind"},
	)
	// RouteExpansions records A* node expansions summed over a planner call
	RouteExpansions = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_search_expansions", Help: "A* node expansions per planner call.", Buckets: prometheus.ExponentialBuckets(16, 4, 8)},
		[]string{"kind"},
	)
	// GraphSnapshots tracks the live snapshot version per city
	GraphSnapshots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "graph_snapshot_version", Help: "Current road graph snapshot version per city."},
		[]string{"city"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors on Registry. Safe to call repeatedly.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(HTTPRateLimited)
		Registry.MustRegister(RouteSearches)
		Registry.MustRegister(RouteSearchDuration)
		Registry.MustRegister(RouteExpansions)
		Registry.MustRegister(GraphSnapshots)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
