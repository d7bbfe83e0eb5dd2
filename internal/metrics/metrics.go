// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package metrics provides Prometheus instrumentation for the ingestion
// engine: quota consumption, connector governance, task runtime, catalog
// queries, and the read-side API. Metrics are exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Quota and rate budget metrics, labeled by platform.
	QuotaConsumed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_quota_consumed_units",
			Help: "API quota units consumed today per platform",
		},
		[]string{"platform"},
	)

	QuotaLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_quota_limit_units",
			Help: "Configured daily API quota limit per platform",
		},
		[]string{"platform"},
	)

	QuotaExhaustions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_quota_exhaustions_total",
			Help: "Times a platform hit its daily quota limit",
		},
		[]string{"platform"},
	)

	RateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_rate_limit_remaining",
			Help: "Rate limit points remaining as reported by the platform",
		},
		[]string{"platform"},
	)

	// Connector governance metrics.
	ConnectorStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connector_status",
			Help: "Connector operational status (0=active, 1=paused, 2=error, 3=disabled)",
		},
		[]string{"platform"},
	)

	ConnectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_errors_total",
			Help: "Total connector call failures per platform",
		},
		[]string{"platform", "operation"},
	)

	ConnectorPauses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_pauses_total",
			Help: "Times a connector was paused, labeled by reason",
		},
		[]string{"platform", "reason"}, // quota_exhausted, error_threshold, rate_limit
	)

	// Platform API call metrics.
	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_request_duration_seconds",
			Help:    "Duration of outbound platform API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform", "operation"},
	)

	PlatformRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_requests_total",
			Help: "Total outbound platform API calls",
		},
		[]string{"platform", "operation", "result"}, // result: success, failure, rejected
	)

	// Discovery and liveness metrics.
	StreamsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streams_discovered_total",
			Help: "Streams found by discovery runs",
		},
		[]string{"platform", "method"}, // method: search, rss, submission
	)

	StreamsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streams_ended_total",
			Help: "Streams transitioned to ENDED by liveness polling",
		},
		[]string{"platform"},
	)

	LiveStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_streams",
			Help: "Streams currently tracked as LIVE",
		},
		[]string{"platform"},
	)

	LivenessBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liveness_batch_size",
			Help:    "Stream ids checked per liveness poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200},
		},
		[]string{"platform"},
	)

	// Task runtime metrics.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Duration of scheduled task runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"task", "queue"},
	)

	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_runs_total",
			Help: "Total task executions",
		},
		[]string{"task", "queue", "result"}, // result: success, failure, skipped, timeout
	)

	TaskOverlapsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_overlaps_skipped_total",
			Help: "Ticks skipped because the previous run was still in flight",
		},
		[]string{"task"},
	)

	QueueMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_published_total",
			Help: "Messages published to labeled task queues",
		},
		[]string{"queue"},
	)

	QueueMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_processed_total",
			Help: "Messages consumed and processed from labeled task queues",
		},
		[]string{"queue", "result"},
	)

	// Transport circuit breaker metrics (sony/gobreaker around the HTTP layer).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Transport circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through the transport circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total transport circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Catalog store metrics.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of failed DuckDB queries",
		},
		[]string{"operation", "table"},
	)

	// HTTP projection metrics.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)
)

// RecordPlatformRequest records one outbound API call.
func RecordPlatformRequest(platform, operation string, duration time.Duration, err error) {
	PlatformRequestDuration.WithLabelValues(platform, operation).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
		ConnectorErrors.WithLabelValues(platform, operation).Inc()
	}
	PlatformRequestsTotal.WithLabelValues(platform, operation, result).Inc()
}

// RecordQuota updates the per-platform quota gauges.
func RecordQuota(platform string, consumed, limit int64) {
	QuotaConsumed.WithLabelValues(platform).Set(float64(consumed))
	QuotaLimit.WithLabelValues(platform).Set(float64(limit))
}

// RecordConnectorStatus maps a status string onto the numeric gauge.
func RecordConnectorStatus(platform, status string) {
	var v float64
	switch status {
	case "paused":
		v = 1
	case "error":
		v = 2
	case "disabled":
		v = 3
	}
	ConnectorStatus.WithLabelValues(platform).Set(v)
}

// RecordTaskRun records one scheduled task execution.
func RecordTaskRun(task, queue, result string, duration time.Duration) {
	TaskDuration.WithLabelValues(task, queue).Observe(duration.Seconds())
	TaskRuns.WithLabelValues(task, queue, result).Inc()
}

// RecordDBQuery records one catalog query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
