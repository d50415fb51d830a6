package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "tariff_"

	resultSuccess = "success"
	resultError   = "error"

	ruleHit  = "hit"
	ruleMiss = "miss"
)

var (
	registerOnce sync.Once

	extractionRules   *prometheus.CounterVec
	extractionTotal   *prometheus.CounterVec
	extractionLatency *prometheus.HistogramVec

	billingFailures *prometheus.CounterVec

	optimizationRuns    *prometheus.CounterVec
	optimizationLatency *prometheus.HistogramVec

	analysisTotal   *prometheus.CounterVec
	analysisLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers service metrics and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		extractionRules = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "extraction_rule_total",
				Help: "Extraction rule outcomes by rule and result",
			},
			[]string{"rule", "result"},
		)
		extractionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "extraction_total",
				Help: "Total invoice extractions by result",
			},
			[]string{"result"},
		)
		extractionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "extraction_latency_seconds",
				Help:    "Invoice extraction latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		billingFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_failures_total",
				Help: "Invoices that could not be billed by reason",
			},
			[]string{"reason"},
		)

		optimizationRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "optimization_runs_total",
				Help: "Total demand optimization runs by modality and result",
			},
			[]string{"modality", "result"},
		)
		optimizationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "optimization_latency_seconds",
				Help:    "Demand optimization latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"modality", "result"},
		)

		analysisTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analysis_total",
				Help: "Total analysis runs by result",
			},
			[]string{"result"},
		)
		analysisLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analysis_latency_seconds",
				Help:    "Analysis latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total analysis exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Analysis export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			extractionRules,
			extractionTotal,
			extractionLatency,
			billingFailures,
			optimizationRuns,
			optimizationLatency,
			analysisTotal,
			analysisLatency,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveRule counts one extraction rule outcome.
func ObserveRule(rule string, hit bool) {
	if rule == "" {
		rule = "unknown"
	}
	result := ruleMiss
	if hit {
		result = ruleHit
	}
	if extractionRules != nil {
		extractionRules.WithLabelValues(rule, result).Inc()
	}
}

// ObserveExtraction records extraction latency and result.
func ObserveExtraction(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if extractionTotal != nil {
		extractionTotal.WithLabelValues(result).Inc()
	}
	if extractionLatency != nil {
		extractionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncBillingFailure increments the billing failure counter.
func IncBillingFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if billingFailures != nil {
		billingFailures.WithLabelValues(reason).Inc()
	}
}

// ObserveOptimization records an optimization run.
func ObserveOptimization(modality, result string, duration time.Duration) {
	if modality == "" {
		modality = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if optimizationRuns != nil {
		optimizationRuns.WithLabelValues(modality, result).Inc()
	}
	if optimizationLatency != nil {
		optimizationLatency.WithLabelValues(modality, result).Observe(duration.Seconds())
	}
}

// ObserveAnalysis records analysis latency and result.
func ObserveAnalysis(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if analysisTotal != nil {
		analysisTotal.WithLabelValues(result).Inc()
	}
	if analysisLatency != nil {
		analysisLatency.WithLabelValues(result).Observe(duration.Seconds())
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

// RuleObserver adapts ObserveRule to the extractor's observer.
type RuleObserver struct{}

// ObserveRule implements the extractor observer.
func (RuleObserver) ObserveRule(rule string, hit bool) { ObserveRule(rule, hit) }

// RunObserver adapts ObserveOptimization to the optimizer's observer.
type RunObserver struct{}

// ObserveRun implements the optimizer observer.
func (RunObserver) ObserveRun(modality, outcome string, elapsed time.Duration) {
	if outcome == "ok" {
		outcome = resultSuccess
	}
	ObserveOptimization(modality, outcome, elapsed)
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
