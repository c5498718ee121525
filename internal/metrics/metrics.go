// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package metrics provides Prometheus instrumentation for the ingest
// pipeline, the stores, alert dispatch, and the live subscription broker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest Metrics
	MeasurementsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "measurements_ingested_total",
			Help: "Total number of measurements accepted by the ingest pipeline",
		},
		[]string{"sensor_status"}, // "activo", "falla"
	)

	MeasurementsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "measurements_rejected_total",
			Help: "Total number of measurements rejected before storage",
		},
		[]string{"reason"}, // "validation", "sensor_inactive", "sensor_unknown", "store"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "End-to-end duration of measurement ingest in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Time-Series Store Metrics
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
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Document Store Metrics
	DocStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"operation", "collection", "result"}, // result: "success", "not_found", "error"
	)

	// Alert Metrics
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_raised_total",
			Help: "Total number of alerts raised",
		},
		[]string{"type"}, // "sensor", "climatica", "umbral"
	)

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_transitions_total",
			Help: "Total number of alert lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	RuleEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Total number of rules evaluated against measurements",
		},
	)

	// Dispatch Metrics
	DispatchAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_appends_total",
			Help: "Total number of alerts appended to the notification log",
		},
	)

	DispatchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_retries_total",
			Help: "Total number of notification log append retries",
		},
	)

	DispatchDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_degraded_total",
			Help: "Total number of alerts persisted but not appended to the log",
		},
	)

	// Broker Metrics
	BrokerSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_subscribers",
			Help: "Current number of live alert subscribers",
		},
	)

	BrokerDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_alerts_delivered_total",
			Help: "Total number of alerts delivered to subscribers",
		},
	)

	BrokerSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_entries_skipped_total",
			Help: "Total number of malformed log entries skipped during delivery",
		},
	)

	// Dual-Write Coordinator Metrics
	DualWriteCompensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualwrite_compensations_total",
			Help: "Total number of entity-store compensations after relation write failure",
		},
		[]string{"operation", "result"}, // result: "rolled_back", "residual"
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	// API Metrics
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
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Intake Router Metrics
	IntakeMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_messages_consumed_total",
			Help: "Total number of raw measurement messages consumed from NATS",
		},
	)

	IntakeMessagesPoisoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_messages_poisoned_total",
			Help: "Total number of messages routed to the poison queue",
		},
	)
)

// RecordDBQuery records a time-series store query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
