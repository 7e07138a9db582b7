// Package metrics provides Prometheus instrumentation for optimization runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// Evaluation metrics
var (
	// Completed fitness evaluations
	EvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optibot_evaluations_total",
		Help: "Total number of fitness evaluations",
	})

	// Evaluations rejected by the hard constraints
	DisqualifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optibot_disqualified_total",
		Help: "Total number of evaluations disqualified by total drawdown or flat equity",
	})

	// Evaluations answered from the cache without running the engine
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optibot_cache_hits_total",
		Help: "Total number of evaluations served from the evaluation cache",
	})

	// Evaluation latency
	EvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optibot_eval_duration_ms",
		Help:    "Fitness evaluation duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
)

// Run progress metrics
var (
	// Generation counter of the running optimization
	CurrentGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optibot_generation",
		Help: "Generation the optimizer is currently evaluating",
	})

	// Size of the non-dominated archive
	ParetoFrontSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optibot_pareto_front_size",
		Help: "Number of individuals in the Pareto archive",
	})
)

// RecordEvaluation records one completed fitness evaluation
func RecordEvaluation(d time.Duration, disqualified, cached bool) {
	EvaluationsTotal.Inc()
	if disqualified {
		DisqualifiedTotal.Inc()
	}
	if cached {
		CacheHitsTotal.Inc()
	}
	EvalDuration.Observe(float64(d.Milliseconds()))
}

// RecordGeneration records the optimizer finishing a generation
func RecordGeneration(gen, front int) {
	CurrentGeneration.Set(float64(gen))
	ParetoFrontSize.Set(float64(front))
}

// Recorder bridges the optimizer's metrics hook to the Prometheus
// collectors
type Recorder struct{}

var _ optimize.Metrics = Recorder{}

// EvalDone implements optimize.Metrics
func (Recorder) EvalDone(d time.Duration, disqualified, cached bool) {
	RecordEvaluation(d, disqualified, cached)
}

// Generation implements optimize.Metrics
func (Recorder) Generation(gen, front int) {
	RecordGeneration(gen, front)
}
