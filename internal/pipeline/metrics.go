package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Solve outcomes for the solves_total counter.
const (
	outcomeSuccess       = "success"
	outcomeFailure       = "failure"
	outcomeDiagramFailed = "diagram_failed"
)

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	// StageDuration observes per-stage latency, labeled by stage name.
	StageDuration *prometheus.HistogramVec
	// Solves counts completed requests by outcome.
	Solves *prometheus.CounterVec
}

// NewMetrics registers the pipeline instruments on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eetutor",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage latency of the solve pipeline.",
			// Stages span three orders of magnitude: scoring is
			// sub-second, generation can run minutes.
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		Solves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eetutor",
			Subsystem: "pipeline",
			Name:      "solves_total",
			Help:      "Completed solve requests by outcome.",
		}, []string{"outcome"}),
	}
}
