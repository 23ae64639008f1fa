// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from running slices.
//
// A global, pluggable Backend defaults to a no-op implementation, so metrics
// are always safe to call even when no real backend is configured. Concrete
// systems live in subpackages (prompush, datadog) and are installed with
// SetBackend at process start.
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	StepTotal    = "flowbridge_step_total"
	StepDuration = "flowbridge_step_duration_seconds"
	RecordsTotal = "flowbridge_records_total"
	CounterTotal = "flowbridge_counter_total"
	SlicesTotal  = "flowbridge_slices_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one slice phase
// ("open", "run", "cleanup").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRecords increments a record-level counter. Kinds are "read" and
// "written".
func RecordRecords(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordCounter forwards a user counter merged after a run.
func RecordCounter(job, group, name string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(CounterTotal, float64(delta), Labels{"job": job, "group": group, "name": name})
}

// RecordSlices counts finished slices.
func RecordSlices(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(SlicesTotal, float64(delta), Labels{"job": job})
}
