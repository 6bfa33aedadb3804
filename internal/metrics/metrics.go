// Package metrics instruments the build pipeline with Prometheus metrics.
//
// Metrics:
//
//	rustwasm_builds_total{result}            finished builds, result is "ok" or "error"
//	rustwasm_step_duration_seconds{step}     duration of each pipeline step
//	rustwasm_lock_wait_seconds               time spent waiting for the toolchain lock
//	rustwasm_tool_downloads_total            wasm-bindgen archives downloaded
//	rustwasm_warnings_total                  warnings reported to the host
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Pipeline steps.
const (
	StepFetch    = "fetch"
	StepResolve  = "resolve"
	StepCompile  = "compile"
	StepGlue     = "glue"
	StepOptimize = "optimize"
	StepDecls    = "declarations"
)

// Collector holds the pipeline metrics.
type Collector struct {
	builds       *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	downloads    prometheus.Counter
	warnings     prometheus.Counter
}

// NewCollector creates the pipeline metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rustwasm_builds_total",
			Help: "Total number of finished crate builds",
		}, []string{"result"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rustwasm_step_duration_seconds",
			Help:    "Duration of build pipeline steps in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"step"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rustwasm_lock_wait_seconds",
			Help:    "Time spent waiting for the toolchain lock in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rustwasm_tool_downloads_total",
			Help: "Total number of wasm-bindgen archives downloaded",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rustwasm_warnings_total",
			Help: "Total number of warnings reported to the host",
		}),
	}
	reg.MustRegister(c.builds, c.stepDuration, c.lockWait, c.downloads, c.warnings)
	return c
}

// RecordBuild records a finished build.
func (c *Collector) RecordBuild(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.builds.WithLabelValues(result).Inc()
}

// RecordStep records the duration of a step that started at start.
func (c *Collector) RecordStep(step string, start time.Time) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

// RecordLockWait records how long a compile waited for the lock.
func (c *Collector) RecordLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.lockWait.Observe(d.Seconds())
}

// RecordDownload records a tool download.
func (c *Collector) RecordDownload() {
	if c == nil {
		return
	}
	c.downloads.Inc()
}

// RecordWarning records a warning.
func (c *Collector) RecordWarning() {
	if c == nil {
		return
	}
	c.warnings.Inc()
}

// WriteText writes every metric gathered by g in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
