// Package metrics records operational metrics for import runs behind a
// backend-agnostic interface.
//
// A global backend defaults to a no-op, so the helpers are always safe to
// call. Concrete systems (Prometheus Pushgateway, Datadog) live in
// subpackages and are installed with SetBackend by the CLI.
package metrics

import "time"

// Metric names.
const (
	StepTotal       = "csvimport_step_total"
	StepDuration    = "csvimport_step_duration_seconds"
	RowsTotal       = "csvimport_rows_total"
	DiagnosticTotal = "csvimport_diagnostics_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep records latency and outcome of one run step (open, preload,
// assemble, load).
func RecordStep(table, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"table": table, "step": step, "status": status}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind, e.g. "read", "assembled",
// "inserted", "deleted".
func RecordRows(table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"table": table, "kind": kind})
}

// RecordDiagnostics increments the diagnostic counter for level.
func RecordDiagnostics(table, level string, delta int) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(DiagnosticTotal, float64(delta), Labels{"table": table, "level": level})
}
