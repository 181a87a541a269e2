package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the question pipeline. Every
// degraded path must be visible here: fallbacks are silent to the user
// by design, so the counters are the only way to notice a misbehaving
// collaborator.
type Metrics struct {
	// Fallback activations by component and reason
	Fallbacks *prometheus.CounterVec

	// Per-stage latency across the pipeline
	StageLatency *prometheus.HistogramVec

	// Candidate volume coming out of retrieval passes
	RetrievalCandidates prometheus.Histogram

	// Questions answered by terminal outcome
	Answers *prometheus.CounterVec
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lawquery_fallbacks_total",
			Help: "Degraded-path activations by component and reason",
		}, []string{"component", "reason"}),

		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lawquery_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		RetrievalCandidates: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lawquery_retrieval_candidates",
			Help:    "Candidate chunks produced per retrieval pass",
			Buckets: []float64{5, 10, 20, 40, 80, 120, 200},
		}),

		Answers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lawquery_answers_total",
			Help: "Completed questions by outcome",
		}, []string{"outcome"}), // "answered", "degraded", "no_evidence", "cancelled"
	}
}

// Fallback records that a component fell back to its safe default.
func (m *Metrics) Fallback(component, reason string) {
	if m != nil {
		m.Fallbacks.WithLabelValues(component, reason).Inc()
	}
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// ObserveCandidates records the size of one retrieval pass result.
func (m *Metrics) ObserveCandidates(n int) {
	if m != nil {
		m.RetrievalCandidates.Observe(float64(n))
	}
}

// Outcome records a terminal pipeline outcome.
func (m *Metrics) Outcome(outcome string) {
	if m != nil {
		m.Answers.WithLabelValues(outcome).Inc()
	}
}
