package metrics

// Recorder adapts Metrics to the scorer's recorder interface so the cpi
// package does not depend on Prometheus. A nil *Recorder is safe to use.
type Recorder struct {
	m *Metrics
}

// NewRecorder wraps m for use by the scorer.
func NewRecorder(m *Metrics) *Recorder {
	return &Recorder{m: m}
}

// ImputationFitsInc counts one fitted imputation model.
func (r *Recorder) ImputationFitsInc() {
	if r == nil || r.m == nil {
		return
	}
	r.m.ImputationFits.Inc()
}

// PermutationsInc counts one permutation evaluation.
func (r *Recorder) PermutationsInc() {
	if r == nil || r.m == nil {
		return
	}
	r.m.Permutations.Inc()
}

// ScoreLatencyObserve records one end-to-end scoring duration in seconds.
func (r *Recorder) ScoreLatencyObserve(seconds float64) {
	if r == nil || r.m == nil {
		return
	}
	r.m.ScoreLatency.Observe(seconds)
	r.m.RunsTotal.Inc()
}
