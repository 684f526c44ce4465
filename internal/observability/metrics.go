// Package observability holds the prometheus instrumentation for the
// pipeline. Collectors are registered once on the default registry and
// incremented from the packages doing the work.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labstack/echo/v4"
)

var (
	// IngestTotal counts telemetry ingest attempts by outcome
	// (ok, invalid, error).
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquaguard",
		Subsystem: "ingest",
		Name:      "requests_total",
		Help:      "Telemetry ingest attempts by outcome.",
	}, []string{"outcome"})

	// InferenceDuration observes predictor wall time in seconds.
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aquaguard",
		Subsystem: "inference",
		Name:      "duration_seconds",
		Help:      "Wall time of predictor invocations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// PredictionsTotal counts predictions by verdict
	// (leak, no_leak, safe_default, simulated).
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquaguard",
		Subsystem: "inference",
		Name:      "predictions_total",
		Help:      "Predictions by verdict.",
	}, []string{"verdict"})

	// AlertsCreated counts alerts persisted.
	AlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aquaguard",
		Subsystem: "alerts",
		Name:      "created_total",
		Help:      "Alerts created.",
	})

	// AlertsSuppressed counts positive predictions dropped by deduplication.
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aquaguard",
		Subsystem: "alerts",
		Name:      "suppressed_total",
		Help:      "Positive predictions suppressed by the dedup window.",
	})

	// DatasetRows counts corpus rows written by corpus (bulk, validated).
	DatasetRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquaguard",
		Subsystem: "dataset",
		Name:      "rows_total",
		Help:      "Training corpus rows appended.",
	}, []string{"corpus"})

	// TrainingRuns counts training runs by trigger (manual, automatic-threshold).
	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquaguard",
		Subsystem: "training",
		Name:      "runs_total",
		Help:      "Training runs started by trigger.",
	}, []string{"trigger"})
)

// MetricsHandler exposes the default registry for scraping.
func MetricsHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
