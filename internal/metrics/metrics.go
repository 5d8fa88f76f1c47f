package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsHandled tracks failures seen by the central error handler
	ErrorsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_errors_total",
			Help: "Total number of failures handled",
		},
		[]string{"category", "severity"},
	)

	// RateLimited tracks failures short-circuited by the rate limiter
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_rate_limited_total",
			Help: "Total number of failures rejected by the error rate limiter",
		},
	)

	// RecoveryAttempts tracks recovery runs per strategy and outcome
	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_recovery_attempts_total",
			Help: "Total number of recovery attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// CircuitState exposes breaker state: 0 closed, 1 half-open, 2 open
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faultline_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// AuditEntries tracks appended audit entries
	AuditEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_audit_entries_total",
			Help: "Total number of audit entries appended",
		},
		[]string{"category"},
	)

	// AuditFlushLatency tracks durable flush latency
	AuditFlushLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faultline_audit_flush_seconds",
			Help:    "Audit flush latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Validations tracks parameter validation outcomes
	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_validations_total",
			Help: "Total number of parameter validations",
		},
		[]string{"parameter", "result"},
	)

	// QueueDepth tracks deferred operations awaiting the queue processor
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_queue_depth",
			Help: "Number of deferred operations in the recovery queue",
		},
	)
)
