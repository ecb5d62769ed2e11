package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-stage metadata for document processing jobs.
type PipelineMetrics struct {
	duration   *prometheus.HistogramVec
	success    *prometheus.CounterVec
	failure    *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "document_stage_duration_seconds",
		Help:    "Duration of document processing stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_stage_success",
		Help: "Successful document processing stages.",
	}, []string{"stage"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_stage_failure",
		Help: "Failed document processing stages.",
	}, []string{"stage"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "document_queue_depth",
		Help: "Number of document jobs waiting in the processing queue.",
	})
	reg.MustRegister(duration, success, failure, queueDepth)
	return &PipelineMetrics{
		duration:   duration,
		success:    success,
		failure:    failure,
		queueDepth: queueDepth,
	}
}

// ObserveDuration records the duration for the named stage.
func (p *PipelineMetrics) ObserveDuration(stage string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named stage.
func (p *PipelineMetrics) IncSuccess(stage string) {
	if p == nil || p.success == nil {
		return
	}
	p.success.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncFailure increments the failure counter for the named stage.
func (p *PipelineMetrics) IncFailure(stage string) {
	if p == nil || p.failure == nil {
		return
	}
	p.failure.WithLabelValues(normalizeLabel(stage)).Inc()
}

// SetQueueDepth reports the current number of queued jobs.
func (p *PipelineMetrics) SetQueueDepth(depth int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(depth))
}

func normalizeLabel(stage string) string {
	if stage == "" {
		return "unknown"
	}
	return stage
}
