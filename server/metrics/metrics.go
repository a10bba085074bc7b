package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/san-kum/helmet-cv/server/models"
)

const namespace = "helmet"

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	ImagesProcessed   prometheus.Counter
	VideosProcessed   *prometheus.CounterVec
	FramesRead        prometheus.Counter
	FramesSampled     prometheus.Counter
	InferenceErrors   prometheus.Counter
	InferenceDuration prometheus.Histogram
	Detections        *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	PreviewClients    prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ImagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_processed_total",
			Help:      "Images run through the detector",
		}),
		VideosProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_processed_total",
			Help:      "Videos handled, by outcome",
		}, []string{"outcome"}),
		FramesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_frames_read_total",
			Help:      "Video frames decoded",
		}),
		FramesSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_frames_sampled_total",
			Help:      "Video frames sent to the detector",
		}),
		InferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Detector calls that failed",
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Wall time of one detector call",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detections by label",
		}, []string{"label"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
		PreviewClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preview_clients",
			Help:      "Open live preview websockets",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.ImagesProcessed,
		m.VideosProcessed,
		m.FramesRead,
		m.FramesSampled,
		m.InferenceErrors,
		m.InferenceDuration,
		m.Detections,
		m.ActiveSessions,
		m.PreviewClients,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ObserveInference(duration time.Duration, err error) {
	m.InferenceDuration.Observe(duration.Seconds())
	if err != nil {
		m.InferenceErrors.Inc()
	}
}

func (m *Metrics) ObserveDetections(stats models.FrameStatistics) {
	if stats.Helmet > 0 {
		m.Detections.WithLabelValues(string(models.LabelHelmet)).Add(float64(stats.Helmet))
	}
	if stats.NoHelmet > 0 {
		m.Detections.WithLabelValues(string(models.LabelNoHelmet)).Add(float64(stats.NoHelmet))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
