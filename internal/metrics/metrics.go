package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the capture counters. Every method is safe on a nil
// receiver so callers never have to check.
type Metrics struct {
	registry *prometheus.Registry

	// Runs
	RunsStarted prometheus.Counter
	Active      prometheus.Gauge
	RunDuration prometheus.Histogram

	// Audio path
	FramesSent prometheus.Counter
	BytesSent  prometheus.Counter
	BadReads   prometheus.Counter

	// Results
	Transcripts *prometheus.CounterVec
	Errors      *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "capture_runs_total",
			Help: "Total number of capture runs started",
		}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Name: "capture_active",
			Help: "1 while a capture run is streaming, 0 otherwise",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "capture_run_duration_seconds",
			Help:    "Wall time of capture runs from start to stopped",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34 minutes
		}),

		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "capture_frames_sent_total",
			Help: "Audio frames sent to the recognition service",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "capture_bytes_sent_total",
			Help: "Audio payload bytes sent to the recognition service",
		}),
		BadReads: f.NewCounter(prometheus.CounterOpts{
			Name: "capture_bad_reads_total",
			Help: "Transient device read failures that were skipped",
		}),

		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_transcripts_total",
			Help: "Transcript alternatives received",
		}, []string{"final"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_errors_total",
			Help: "Capture runs ended by an error, by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
	m.Active.Set(1)
}

func (m *Metrics) RecordRunStopped(durationSeconds float64) {
	if m == nil {
		return
	}
	m.Active.Set(0)
	m.RunDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordFrame(bytes int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

func (m *Metrics) RecordBadRead() {
	if m == nil {
		return
	}
	m.BadReads.Inc()
}

func (m *Metrics) RecordTranscript(final bool) {
	if m == nil {
		return
	}
	m.Transcripts.WithLabelValues(strconv.FormatBool(final)).Inc()
}

func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}
