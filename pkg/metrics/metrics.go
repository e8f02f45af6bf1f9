// Package metrics holds the Prometheus metrics of the prediction service.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics of the service
type Metrics struct {
	UploadTotal        *prometheus.CounterVec   // by kind, status
	UploadBytes        prometheus.Counter       // accepted uploads only
	PredictionTotal    *prometheus.CounterVec   // by kind, status
	PredictionDuration *prometheus.HistogramVec // by kind
	ClassTotal         *prometheus.CounterVec   // by kind, class
	VideoFrames        prometheus.Counter       // frames run through the detector
	ModelLoaded        *prometheus.GaugeVec     // by model

	registry *prometheus.Registry
}

// NewMetrics creates the metrics on a private registry, along with the Go runtime collectors
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	collectorsToRegister := []prometheus.Collector{
		m.UploadTotal,
		m.UploadBytes,
		m.PredictionTotal,
		m.PredictionDuration,
		m.ClassTotal,
		m.VideoFrames,
		m.ModelLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range collectorsToRegister {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.UploadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafscan_uploads_total",
			Help: "Total number of upload requests",
		},
		[]string{"kind", "status"},
	)
	m.UploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leafscan_upload_bytes_total",
			Help: "Total size of accepted uploads",
		},
	)
	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafscan_predictions_total",
			Help: "Total number of prediction requests",
		},
		[]string{"kind", "status"},
	)
	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafscan_prediction_duration_seconds",
			Help:    "Time taken to run a prediction, including annotation and re-encoding",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"kind"},
	)
	m.ClassTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafscan_predicted_class_total",
			Help: "Number of times each class was the top prediction (images) or was detected (videos)",
		},
		[]string{"kind", "class"},
	)
	m.VideoFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leafscan_video_frames_total",
			Help: "Total number of video frames run through the detector",
		},
	)
	m.ModelLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leafscan_model_loaded",
			Help: "Whether a model is loaded (1) or not (0)",
		},
		[]string{"model"},
	)
}

// RecordUpload records an upload attempt. kind is empty if the upload was rejected before we knew its kind.
func (m *Metrics) RecordUpload(kind string, size int64, err error) {
	if kind == "" {
		kind = "unknown"
	}
	if err != nil {
		m.UploadTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	m.UploadTotal.WithLabelValues(kind, "success").Inc()
	m.UploadBytes.Add(float64(size))
}

// RecordPrediction records a prediction request
func (m *Metrics) RecordPrediction(kind string, duration time.Duration, err error) {
	if err != nil {
		m.PredictionTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	m.PredictionTotal.WithLabelValues(kind, "success").Inc()
	m.PredictionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordClass(kind, class string) {
	m.ClassTotal.WithLabelValues(kind, class).Inc()
}

func (m *Metrics) AddVideoFrames(n int) {
	m.VideoFrames.Add(float64(n))
}

func (m *Metrics) SetModelLoaded(model string, loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	m.ModelLoaded.WithLabelValues(model).Set(v)
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:      m.registry,
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
