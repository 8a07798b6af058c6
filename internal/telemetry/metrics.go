// Package telemetry provides application-level observability for the contract factory.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<FACTORY_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Factory counters: contracts created and the current registry size
//   - Event delivery and metadata publishing counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/contracts/:address)
// rather than the raw request URL. Contract addresses never appear as label values.
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
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and buckets
// from 5 ms to 30 s.
//
// Example PromQL queries:
//   - p99 latency per route:  histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Factory metrics, recorded by factory.Registry.
//
// ContractsCreatedTotal counts successful creations since process start.
// RegistryContracts is the number of contracts known to the registry; it is
// seeded from the store at startup and incremented on every creation.
//
// Example PromQL queries:
//   - Creation rate:  rate(contracts_created_total[1h])
var (
	ContractsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contracts_created_total",
			Help: "Total number of contracts deployed by the factory.",
		},
	)

	RegistryContracts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_contracts",
			Help: "Number of contracts currently recorded in the registry.",
		},
	)
)

// EventShipErrorsTotal is a CounterVec with label {shipper} incremented whenever
// a ContractCreated event could not be delivered to a downstream shipper.
//
// Example PromQL queries:
//   - Alert expression:  increase(event_ship_errors_total[15m]) > 0
var EventShipErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "event_ship_errors_total",
		Help: "Total number of failed event deliveries, by shipper.",
	},
	[]string{"shipper"},
)

// MetadataDocumentsPublishedTotal is a CounterVec with label {source}: "event" for
// documents written when a contract is created, "sync" for documents backfilled by
// the metadata sync job.
var MetadataDocumentsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "metadata_documents_published_total",
		Help: "Total number of contract metadata documents written to storage, by source.",
	},
	[]string{"source"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples connection pool statistics every 30 seconds until
// ctx is cancelled or the database becomes unreachable.
//
//	telemetry.StartDBStatsCollector(ctx, database)
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
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
