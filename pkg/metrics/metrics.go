// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestBatchesTotal tracks ingest batches by outcome
	IngestBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Total number of ingest batches by status",
		},
		[]string{"status"},
	)

	// IngestBatchDuration tracks batch processing duration in seconds
	IngestBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Duration of ingest batch processing in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// IngestRecordsTotal tracks processed records by result
	IngestRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total number of ingested records by result",
		},
		[]string{"result"},
	)

	// IngestBatchSize tracks records per batch
	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "batch_size",
			Help:      "Number of records per ingest batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// DetectionRequestsTotal tracks field detection attempts by status
	DetectionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "detection",
			Name:      "requests_total",
			Help:      "Total number of field detection attempts by status",
		},
		[]string{"status"},
	)

	// DetectionDuration tracks detection call duration
	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "detection",
			Name:      "duration_seconds",
			Help:      "Duration of field detection calls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
	)

	// IntegrityViolationsTotal tracks fingerprint uniqueness violations observed
	IntegrityViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "integrity_violations_total",
			Help:      "Total number of duplicate fingerprint rows observed during matching",
		},
	)

	// AutomationExportsTotal tracks items handed to automation by status
	AutomationExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "automation",
			Name:      "exports_total",
			Help:      "Total number of items exported to automation by status",
		},
		[]string{"status"},
	)

	// RateLimitHits tracks requests rejected by the rate limiter
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Total number of rate limited requests",
		},
		[]string{"route"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordBatch records the outcome of one ingest batch
func RecordBatch(status string, size int, durationSeconds float64) {
	IngestBatchesTotal.WithLabelValues(status).Inc()
	IngestBatchSize.Observe(float64(size))
	IngestBatchDuration.Observe(durationSeconds)
}

// RecordRecord records the result of one ingested record
func RecordRecord(result string) {
	IngestRecordsTotal.WithLabelValues(result).Inc()
}

// RecordDetection records a field detection attempt
func RecordDetection(status string, durationSeconds float64) {
	DetectionRequestsTotal.WithLabelValues(status).Inc()
	DetectionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an inbound HTTP request
func RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
