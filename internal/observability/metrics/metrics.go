package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "assat_"

	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"
)

var (
	registerOnce sync.Once

	ledgerOpsTotal   *prometheus.CounterVec
	ledgerOpsLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	projectionRequests prometheus.Counter
	loginAttempts      *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ledgerOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_operations_total",
				Help: "Total ledger operations by operation and result",
			},
			[]string{"op", "result"},
		)
		ledgerOpsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ledger_operation_latency_seconds",
				Help:    "Ledger operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		projectionRequests = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "projection_requests_total",
				Help: "Total capitalization projection requests",
			},
		)
		loginAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "login_attempts_total",
				Help: "Total login attempts by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			ledgerOpsTotal,
			ledgerOpsLatency,
			exportTotal,
			exportLatency,
			projectionRequests,
			loginAttempts,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveLedgerOp records a ledger operation result and duration.
func ObserveLedgerOp(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ledgerOpsTotal != nil {
		ledgerOpsTotal.WithLabelValues(op, result).Inc()
	}
	if ledgerOpsLatency != nil {
		ledgerOpsLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncProjection increments the projection request counter.
func IncProjection() {
	if projectionRequests != nil {
		projectionRequests.Inc()
	}
}

// IncLogin increments login attempts by result.
func IncLogin(result string) {
	if result == "" {
		result = "unknown"
	}
	if loginAttempts != nil {
		loginAttempts.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultRejected = resultRejected
	ResultError    = resultError
)
