package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "bizledger_"

	resultSuccess = "success"
	resultError   = "error"

	entryUpdated   = "updated"
	entryUnchanged = "unchanged"
	entryFailed    = "failed"
)

var (
	registerOnce sync.Once

	sweepRunsTotal *prometheus.CounterVec
	sweepLatency   *prometheus.HistogramVec
	sweepEntries   *prometheus.CounterVec

	settlementTotal   *prometheus.CounterVec
	settlementLatency *prometheus.HistogramVec
	settlementAmount  prometheus.Counter

	statusTransitions *prometheus.CounterVec

	balanceTotal *prometheus.CounterVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	eventPublishTotal *prometheus.CounterVec
)

// Init registers receivables metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		sweepRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_runs_total",
				Help: "Total reconciliation sweeps by trigger and result",
			},
			[]string{"trigger", "result"},
		)
		sweepLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sweep_latency_seconds",
				Help:    "Reconciliation sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		)
		sweepEntries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_entries_total",
				Help: "Entries processed by sweeps by outcome",
			},
			[]string{"outcome"},
		)

		settlementTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_total",
				Help: "Total payment settlements by result",
			},
			[]string{"result"},
		)
		settlementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_latency_seconds",
				Help:    "Payment settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementAmount = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_amount_total",
				Help: "Sum of settled amounts",
			},
		)

		statusTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_transitions_total",
				Help: "Entry status transitions by source and target",
			},
			[]string{"from", "to"},
		)

		balanceTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_requests_total",
				Help: "Total balance computations by result",
			},
			[]string{"result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		eventPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_publish_total",
				Help: "Status change events published by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			sweepRunsTotal,
			sweepLatency,
			sweepEntries,
			settlementTotal,
			settlementLatency,
			settlementAmount,
			statusTransitions,
			balanceTotal,
			reportExportTotal,
			reportExportLatency,
			eventPublishTotal,
		)

		if db != nil {
			prometheus.MustRegister(newLedgerCollector(db, logger))
		}
	})
}

// ObserveSweep records a sweep run and its per-entry outcomes.
func ObserveSweep(trigger, result string, duration time.Duration, updated, unchanged, failed int) {
	if trigger == "" {
		trigger = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if sweepRunsTotal != nil {
		sweepRunsTotal.WithLabelValues(trigger, result).Inc()
	}
	if sweepLatency != nil {
		sweepLatency.WithLabelValues(trigger).Observe(duration.Seconds())
	}
	if sweepEntries != nil {
		sweepEntries.WithLabelValues(entryUpdated).Add(float64(updated))
		sweepEntries.WithLabelValues(entryUnchanged).Add(float64(unchanged))
		sweepEntries.WithLabelValues(entryFailed).Add(float64(failed))
	}
}

// ObserveSettlement records settlement latency and result.
func ObserveSettlement(result string, duration time.Duration, amount float64) {
	if result == "" {
		result = resultSuccess
	}
	if settlementTotal != nil {
		settlementTotal.WithLabelValues(result).Inc()
	}
	if settlementLatency != nil {
		settlementLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if settlementAmount != nil && amount > 0 {
		settlementAmount.Add(amount)
	}
}

// IncStatusTransition increments the transition counter.
func IncStatusTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}
	if statusTransitions != nil {
		statusTransitions.WithLabelValues(from, to).Inc()
	}
}

// IncBalance increments the balance request counter.
func IncBalance(result string) {
	if result == "" {
		result = resultSuccess
	}
	if balanceTotal != nil {
		balanceTotal.WithLabelValues(result).Inc()
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncEventPublish increments the event publish counter.
func IncEventPublish(result string) {
	if result == "" {
		result = resultSuccess
	}
	if eventPublishTotal != nil {
		eventPublishTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
