// Package metrics provides Prometheus metrics for importance scoring runs.
// It covers imputation-model fitting, permutation evaluation and end-to-end
// scoring latency, exposed via the optional metrics endpoint of the CLI.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the importance toolkit.
type Metrics struct {
	// Scoring metrics
	RunsTotal      prometheus.Counter   // Completed importance runs
	ScoreLatency   prometheus.Histogram // End-to-end Score latency in seconds
	ImputationFits prometheus.Counter   // Imputation models fitted
	Permutations   prometheus.Counter   // Permutation evaluations performed

	// Learner metrics
	LearnerFits       prometheus.Counter   // Ensemble learner fits
	LearnerFitLatency prometheus.Histogram // Ensemble fit latency in seconds

	// System metrics
	ErrorsTotal prometheus.Counter // Errors encountered
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "importance_runs_total",
			Help: "Total number of completed importance runs",
		}),
		ScoreLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "importance_score_latency_seconds",
			Help:    "End-to-end importance scoring latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		ImputationFits: factory.NewCounter(prometheus.CounterOpts{
			Name: "imputation_fits_total",
			Help: "Total number of imputation models fitted",
		}),
		Permutations: factory.NewCounter(prometheus.CounterOpts{
			Name: "permutation_evaluations_total",
			Help: "Total number of permutation evaluations performed",
		}),
		LearnerFits: factory.NewCounter(prometheus.CounterOpts{
			Name: "learner_fits_total",
			Help: "Total number of ensemble learner fits",
		}),
		LearnerFitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "learner_fit_latency_seconds",
			Help:    "Ensemble learner fit latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
