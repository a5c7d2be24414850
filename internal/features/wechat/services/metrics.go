package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRunsTotal counts fetch, preview and import runs by outcome.
	FetchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wechat",
			Name:      "fetch_runs_total",
			Help:      "Total number of acquisition runs",
		},
		[]string{"operation", "outcome"},
	)

	// CandidatesTotal counts candidates by what happened to them.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wechat",
			Name:      "candidates_total",
			Help:      "Total number of article candidates by result",
		},
		[]string{"result"},
	)

	// StrategyAttemptsTotal counts acquisition strategy attempts.
	StrategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wechat",
			Name:      "strategy_attempts_total",
			Help:      "Total number of acquisition strategy attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// ImagesTotal counts image materialization attempts.
	ImagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wechat",
			Name:      "images_total",
			Help:      "Total number of image materialization attempts",
		},
		[]string{"outcome"},
	)

	// FetchDuration measures fetch run duration.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wechat",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of acquisition runs in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)
)

// RecordRun records a finished run.
func RecordRun(operation, outcome string, seconds float64) {
	FetchRunsTotal.WithLabelValues(operation, outcome).Inc()
	FetchDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordCandidates records the counters of a fetch result.
func RecordCandidates(success, failed, skipped int) {
	CandidatesTotal.WithLabelValues("success").Add(float64(success))
	CandidatesTotal.WithLabelValues("failed").Add(float64(failed))
	CandidatesTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordStrategy records one strategy attempt.
func RecordStrategy(strategy, outcome string) {
	StrategyAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordImage records one image materialization.
func RecordImage(outcome string) {
	ImagesTotal.WithLabelValues(outcome).Inc()
}
