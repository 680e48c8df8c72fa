// Package metrics provides Prometheus metrics for the fern sync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ERPCallsTotal tracks SoftOne service calls by service and outcome
	ERPCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "softone",
			Name:      "calls_total",
			Help:      "Total number of SoftOne service calls by outcome",
		},
		[]string{"service", "outcome"},
	)

	// ERPAuthRetries tracks calls repaired by re-authenticating
	ERPAuthRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "softone",
			Name:      "auth_retries_total",
			Help:      "Total number of SoftOne calls retried after a session failure",
		},
		[]string{"service"},
	)

	// SessionLookups tracks where client ids were served from
	SessionLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "softone",
			Name:      "session_lookups_total",
			Help:      "Total number of client id lookups by source",
		},
		[]string{"source"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method"},
	)

	// ImportRowsTotal tracks imported rows by outcome
	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of ERP item rows processed by outcome",
		},
		[]string{"outcome"},
	)

	// ImportBatchDuration tracks batch duration in seconds
	ImportBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "batch_duration_seconds",
			Help:      "Duration of item import batches in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// ImportRunsTotal tracks started and completed import runs
	ImportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by mode and status",
		},
		[]string{"mode", "status"},
	)

	// StaleProductsTotal tracks products hit by the stale policy
	StaleProductsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "stale_products_total",
			Help:      "Total number of products withdrawn after disappearing from the ERP",
		},
		[]string{"policy"},
	)

	// OrderExportsTotal tracks order exports by status
	OrderExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "export",
			Name:      "orders_total",
			Help:      "Total number of order exports by status",
		},
		[]string{"status"},
	)

	// OrderExportAttempts tracks document transmission attempts
	OrderExportAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "export",
			Name:      "attempts_total",
			Help:      "Total number of sales document transmission attempts",
		},
		[]string{"status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of sync events published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordERPCall records a SoftOne call outcome.
func RecordERPCall(service, outcome string) {
	ERPCallsTotal.WithLabelValues(service, outcome).Inc()
}

// RecordHTTPRequest records an outbound HTTP request.
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordImportRow records one processed row.
func RecordImportRow(outcome string) {
	ImportRowsTotal.WithLabelValues(outcome).Inc()
}

// RecordOrderExport records the final status of an export.
func RecordOrderExport(status string) {
	OrderExportsTotal.WithLabelValues(status).Inc()
}

// RecordKafkaPublish records a Kafka publish.
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
