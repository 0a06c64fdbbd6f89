// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a split run.
//
// It exposes a narrow Backend interface (counters and timings) behind a global,
// pluggable backend that defaults to a no-op, so instrumentation is always safe
// to call. Concrete systems live in subpackages (prompush, datadog) and are
// installed by the command with SetBackend.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal           = "split_step_total"
	StepDurationSeconds = "split_step_duration_seconds"
	RecordsTotal        = "split_records_total"
	ShardsTotal         = "split_shards_total"
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

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// Nop returns the backend that discards everything; it is the default.
func Nop() Backend { return nopBackend{} }

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
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

// RecordStep measures latency and success/failure of one run step
// ("open", "split", "rotate", "ledger", "publish").
func RecordStep(run, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"run":    run,
		"step":   step,
		"status": status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRecords increments a record-level counter. Kinds mirror the run
// summary: "scanned", "without_value", "written", "excluded", "filtered",
// "duplicates", "skipped".
func RecordRecords(run, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"run":  run,
		"kind": kind,
	})
}

// RecordShards increments the closed-shard counter.
func RecordShards(run string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(ShardsTotal, float64(delta), Labels{
		"run": run,
	})
}
