// Package telemetry provides application-level observability for the marketplace.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<MVP_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Entry download counters
//   - Publication pipeline step counters and durations
//   - Webhook-triggered sync counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/entries/:id/download)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as entry slugs or version strings.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/mvpmarket/mvpmarket/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.EntryDownloadsTotal.WithLabelValues(category).Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /v1/entries/:id/download),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// EntryDownloadsTotal is a CounterVec with label {category} incremented whenever a
// buyer fetches an entry download URL.
//
// Example PromQL queries:
//   - Download rate by category:  sum by (category) (rate(entry_downloads_total[1h]))
//   - Most popular categories:    topk(5, sum by (category) (entry_downloads_total))
var EntryDownloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entry_downloads_total",
		Help: "Total number of entry archive downloads, by category.",
	},
	[]string{"category"},
)

// Publication pipeline metrics — recorded by the processor for each pipeline run.
//
// PipelineStepsTotal is a CounterVec with labels {step, outcome}.  step is one of
// "scan" or "pin"; outcome is "success" or "failure".  An alert on
// rate(pipeline_steps_total{outcome="failure"}[1h]) > 0 catches scanner or pinning
// service outages early.
//
// PipelineStepDuration is a HistogramVec with label {step} using the default
// Prometheus buckets.  Each observation is one scan or pin call, successful or not.
//
// Example PromQL queries:
//   - Failure rate by step:  sum by (step) (rate(pipeline_steps_total{outcome="failure"}[1h]))
//   - p95 pin duration:      histogram_quantile(0.95, rate(pipeline_step_duration_seconds_bucket{step="pin"}[1h]))
var (
	PipelineStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_steps_total",
			Help: "Total number of publication pipeline step executions, by step and outcome.",
		},
		[]string{"step", "outcome"},
	)

	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Duration of a single publication pipeline step.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)
)

// WebhookSyncsTotal is a CounterVec with label {outcome} ("synced", "noop",
// "failure") incremented once per webhook-triggered repository sync.  A spike in
// failures usually means GitHub API trouble or a revoked installation.
//
// Example PromQL queries:
//   - Sync activity:   sum by (outcome) (rate(webhook_syncs_total[1h]))
//   - Alert:           increase(webhook_syncs_total{outcome="failure"}[30m]) > 3
var WebhookSyncsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_syncs_total",
		Help: "Total number of webhook-triggered repository syncs, by outcome.",
	},
	[]string{"outcome"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <MVP_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
