// Package metrics exposes Prometheus collectors for case processing.
//
// # Overview
//
// Counters are package-level and registered with the default registry via
// promauto, so any component can record without plumbing a collector:
//
//	metrics.CasesRead.Inc()
//	metrics.CasesWritten.WithLabelValues(metrics.StreamMemory).Inc()
//
//	timer := metrics.NewTimer("aggregate")
//	runProcedure()
//	metrics.ProcedureDuration.WithLabelValues("aggregate").Observe(timer.Stop().Seconds())
//
// The CLI serves the default registry with promhttp when --metrics-addr is
// set.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream label values for CasesWritten.
const (
	StreamMemory = "memory"
	StreamDisk   = "disk"
)

// Direction label values for SysFileCases.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

var (
	// CasesRead counts cases pulled from procedure sources.
	CasesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabula_cases_read_total",
			Help: "Total number of cases read by procedures",
		},
	)

	// CasesWritten counts cases written to case-stream sinks.
	// Labels: stream (memory/disk)
	CasesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_cases_written_total",
			Help: "Total number of cases written to case stream sinks",
		},
		[]string{"stream"},
	)

	// CasesDeleted counts cases dropped by a transformation.
	CasesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabula_cases_deleted_total",
			Help: "Total number of cases deleted by transformations",
		},
	)

	// CasesExcluded counts cases skipped by the filter variable or a
	// process-if condition.
	CasesExcluded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabula_cases_excluded_total",
			Help: "Total number of cases excluded from procedure callbacks",
		},
	)

	// Spills counts memory sinks that overflowed to disk.
	Spills = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabula_spills_total",
			Help: "Total number of memory case streams moved to disk",
		},
	)

	// SplitGroups counts split-file groups started.
	SplitGroups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabula_split_groups_total",
			Help: "Total number of split-file groups processed",
		},
	)

	// ProcedureDuration tracks procedure wall time in seconds.
	// Labels: procedure
	ProcedureDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabula_procedure_duration_seconds",
			Help:    "Procedure duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"procedure"},
	)

	// SysFileCases counts cases moved through the system-file codec.
	// Labels: direction (read/write)
	SysFileCases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_sysfile_cases_total",
			Help: "Total number of cases read from or written to system files",
		},
		[]string{"direction"},
	)

	// Throughput is the case rate of the most recent procedure.
	// Labels: procedure
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tabula_throughput_cases_per_second",
			Help: "Case throughput of the last procedure run",
		},
		[]string{"procedure"},
	)
)

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts a timer.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was started with.
func (t *Timer) Name() string { return t.name }

// Stop returns the time elapsed since NewTimer. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker counts cases for one procedure and publishes the rate
// to Throughput. Safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	procedure string
}

// NewThroughputTracker creates a tracker labelled with procedure.
func NewThroughputTracker(procedure string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		procedure: procedure,
	}
}

// Increment adds n to the case count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset computes cases per second since the last reset, publishes it
// and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.procedure).Set(throughput)

	return throughput
}
