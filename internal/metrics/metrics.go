// Package metrics exposes Prometheus instrumentation for registry, cache and
// query operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts core operations by name and result (ok|error).
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbpanel_operations_total",
			Help: "Total number of core operations",
		},
		[]string{"operation", "result"},
	)

	// OperationDuration measures core operation latency, including session open and close.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbpanel_operation_duration_seconds",
			Help:    "Core operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// TableCacheLookups counts table cache lookups by result (hit|miss).
	TableCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbpanel_table_cache_lookups_total",
			Help: "Total number of table cache lookups",
		},
		[]string{"result"},
	)

	// Connections tracks the number of saved connection profiles.
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbpanel_connections",
			Help: "Number of saved connection profiles",
		},
	)
)

// Observe records one operation outcome. Typical use:
//
//	defer metrics.Observe("table.load", time.Now(), &err)
func Observe(operation string, start time.Time, errp *error) {
	result := "ok"
	if errp != nil && *errp != nil {
		result = "error"
	}
	Operations.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
