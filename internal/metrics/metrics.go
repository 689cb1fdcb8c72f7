// =============================================================================
// Fradma Dashboard - Run Metrics
// =============================================================================
//
// Counters for one CLI run. The CLI is a batch tool, so metrics are not
// served over HTTP: they are written once to a Prometheus textfile that a
// node exporter textfile collector picks up (--metrics-file).
//
// A nil *Recorder is valid and records nothing.
//
// =============================================================================

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/reconcile"
)

const namespace = "fradma"

// Persist outcomes.
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

// Recorder holds the run's collectors in a private registry.
type Recorder struct {
	reg *prometheus.Registry

	files     *prometheus.CounterVec
	rows      *prometheus.CounterVec
	nulls     *prometheus.CounterVec
	fallbacks prometheus.Counter
	issues    *prometheus.CounterVec
	persisted *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Input files processed, by profile and result.",
			},
			[]string{"profile", "result"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Canonical rows emitted by reconciliation.",
			},
			[]string{"profile"},
		),
		nulls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "null_values_total",
				Help:      "Null or empty canonical values, by field.",
			},
			[]string{"field"},
		),
		fallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversion_fallbacks_total",
				Help:      "Amounts converted with the fallback exchange rate.",
			},
		),
		issues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_total",
				Help:      "Reconciliation issues, by kind.",
			},
			[]string{"kind"},
		),
		persisted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persisted_rows_total",
				Help:      "Rows offered to the store, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each processing stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}
}

// Registry exposes the registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveFile counts one processed file. ok is false when processing failed.
func (r *Recorder) ObserveFile(profile string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.files.WithLabelValues(profile, result).Inc()
}

// ObserveReconcile records a reconciliation summary.
func (r *Recorder) ObserveReconcile(profile string, s *reconcile.Summary) {
	if r == nil || s == nil {
		return
	}
	r.rows.WithLabelValues(profile).Add(float64(s.RowsTotal))
	for field, n := range s.NullCounts {
		r.nulls.WithLabelValues(string(field)).Add(float64(n))
	}
	r.fallbacks.Add(float64(s.FallbackCount))
	for _, issue := range s.Issues {
		r.issues.WithLabelValues(string(issue.Kind)).Inc()
	}
}

// ObservePersist records the outcome of one insert-if-absent call plus the
// rows skipped before it.
func (r *Recorder) ObservePersist(inserted, duplicates, skipped int) {
	if r == nil {
		return
	}
	r.persisted.WithLabelValues(OutcomeInserted).Add(float64(inserted))
	r.persisted.WithLabelValues(OutcomeDuplicate).Add(float64(duplicates))
	r.persisted.WithLabelValues(OutcomeSkipped).Add(float64(skipped))
}

// ObserveDuration records how long stage took.
func (r *Recorder) ObserveDuration(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes every collected metric to path in the text
// exposition format. The write is atomic.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
