// Package telemetry holds the process-wide logger setup and the Prometheus metrics of the
// user management API.
//
// Metrics are registered against the default registry and exposed by the side-channel
// server started in main.go (GET :<UMS_TELEMETRY_METRICS_PORT>/metrics, default 9090),
// not by the Gin router.
//
// HTTP metrics are labelled with c.FullPath() (e.g. /api/users/:id) rather than the raw
// URL so that entity IDs cannot blow up label cardinality.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):       sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Audit metrics.
//
// AuditRecordsTotal counts audit writes by {table, operation, result}, where result is
// "stored" or "error". Audit writes never fail the request that triggered them, so a
// rising error series is the only signal that the log is falling behind:
//
//	increase(audit_records_total{result="error"}[15m]) > 0
//
// AuditShipFailuresTotal counts entries that were stored but could not be mirrored to
// an external shipper.
var (
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit log writes, by table, operation, and result.",
		},
		[]string{"table", "operation", "result"},
	)

	AuditShipFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Total number of stored audit entries that could not be shipped.",
		},
	)
)

// RateLimitRejectionsTotal counts requests refused by the rate limiter, by limiter tier.
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by tier.",
	},
	[]string{"tier"},
)

// ConfigReloadsTotal counts hot reloads of the config file, by result ("applied", "error").
var ConfigReloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "config_reloads_total",
		Help: "Total number of configuration file reloads, by result.",
	},
	[]string{"result"},
)

// DBOpenConnections tracks the open connections of the sql.DB pool. It is sampled by
// StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples the pool every interval until ctx is cancelled or the
// database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
