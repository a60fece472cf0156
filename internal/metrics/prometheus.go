// Package metrics provides Prometheus metrics for the datacube pipeline
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Archive export metrics
	ExportRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacube_export_requests_total",
			Help: "Total number of archive export requests by final status",
		},
		[]string{"pipeline", "status"},
	)

	ExportWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datacube_export_wait_seconds",
			Help:    "Time spent waiting for the archive to materialise an export",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
		},
		[]string{"pipeline"},
	)

	// Download metrics
	DownloadAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacube_download_attempts_total",
			Help: "Total number of file transfer attempts",
		},
		[]string{"pipeline", "status"},
	)

	BytesDownloaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacube_bytes_downloaded_total",
			Help: "Total bytes downloaded from the archive",
		},
		[]string{"pipeline"},
	)

	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datacube_download_duration_seconds",
			Help:    "Time taken to download one file, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	MissingFrames = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datacube_missing_frames",
			Help: "Number of missing epochs detected in the last export",
		},
		[]string{"pipeline"},
	)

	// Frame processing metrics
	FramesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacube_frames_processed_total",
			Help: "Total number of frames that went through a processing stage",
		},
		[]string{"pipeline", "stage"},
	)

	FrameStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datacube_frame_stage_duration_seconds",
			Help:    "Time taken by one frame processing stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"pipeline", "stage"},
	)

	ImputedSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacube_imputed_samples_total",
			Help: "Total number of undefined samples replaced by the frame median",
		},
		[]string{"pipeline"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacube_errors_total",
			Help: "Total number of errors",
		},
		[]string{"pipeline", "type"},
	)

	// API call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacube_api_calls_total",
			Help: "Total number of API calls made to the archive",
		},
		[]string{"pipeline", "endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datacube_api_call_duration_seconds",
			Help:    "Duration of API calls to the archive",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline", "endpoint"},
	)
)

// PipelineMetrics provides a convenient interface for recording pipeline metrics.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	pipeline string
}

// NewPipelineMetrics creates a new metrics recorder labelled with the pipeline name
func NewPipelineMetrics(pipeline string) *PipelineMetrics {
	return &PipelineMetrics{
		pipeline: pipeline,
	}
}

// RecordExport records the outcome of an export request and how long it took to materialise
func (m *PipelineMetrics) RecordExport(status string, wait time.Duration) {
	if m == nil {
		return
	}
	ExportRequestsTotal.WithLabelValues(m.pipeline, status).Inc()
	ExportWaitDuration.WithLabelValues(m.pipeline).Observe(wait.Seconds())
}

// RecordDownloadAttempt records one transfer attempt
func (m *PipelineMetrics) RecordDownloadAttempt(status string) {
	if m == nil {
		return
	}
	DownloadAttemptsTotal.WithLabelValues(m.pipeline, status).Inc()
}

// RecordDownload records a completed download
func (m *PipelineMetrics) RecordDownload(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	BytesDownloaded.WithLabelValues(m.pipeline).Add(float64(bytes))
	DownloadDuration.WithLabelValues(m.pipeline).Observe(duration.Seconds())
}

// RecordMissingFrames records the number of gaps found in a series
func (m *PipelineMetrics) RecordMissingFrames(n int) {
	if m == nil {
		return
	}
	MissingFrames.WithLabelValues(m.pipeline).Set(float64(n))
}

// RecordFrameStage records one frame passing through a processing stage
func (m *PipelineMetrics) RecordFrameStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	FramesProcessed.WithLabelValues(m.pipeline, stage).Inc()
	FrameStageDuration.WithLabelValues(m.pipeline, stage).Observe(duration.Seconds())
}

// RecordImputed records how many samples of a frame were replaced by its median
func (m *PipelineMetrics) RecordImputed(n int) {
	if m == nil || n == 0 {
		return
	}
	ImputedSamples.WithLabelValues(m.pipeline).Add(float64(n))
}

// RecordError records an error
func (m *PipelineMetrics) RecordError(errorType string) {
	if m == nil {
		return
	}
	ErrorsTotal.WithLabelValues(m.pipeline, errorType).Inc()
}

// RecordAPICall records an API call
func (m *PipelineMetrics) RecordAPICall(endpoint string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	APICallsTotal.WithLabelValues(m.pipeline, endpoint, status).Inc()
	APICallDuration.WithLabelValues(m.pipeline, endpoint).Observe(duration.Seconds())
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
