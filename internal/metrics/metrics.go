// Package metrics defines the minimal metrics surface the synthesis
// pipeline emits through. The core code depends only on Backend;
// concrete backends (Datadog, nop) live in subpackages or here.
package metrics

import "sync"

// Labels are free-form metric dimensions (e.g. model, status).
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	// IncCounter adds delta to a named counter. Non-positive deltas
	// are ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of a named distribution.
	// Negative values are ignored.
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the pipeline.
const (
	RunsTotal            = "synth_runs_total"
	RowsGenerated        = "synth_rows_total"
	TrainDurationSeconds = "synth_train_duration_seconds"
	QualityScore         = "synth_quality_score"
)

// Nop discards all metrics. It is the default backend.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = Nop{}
)

// SetBackend installs the process-wide backend. Passing nil restores
// the nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = Nop{}
		return
	}
	backend = b
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	b.IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	b.ObserveHistogram(name, value, labels)
}
