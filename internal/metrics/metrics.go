package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/responder-tracker/internal/llm"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
)

// Metrics implements llm.AttemptObserver and pipeline.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	ModelAttempts         *prometheus.CounterVec
	ModelAttemptDuration  *prometheus.HistogramVec
	Interpretations       *prometheus.CounterVec
	InterpretDuration     prometheus.Histogram
	AnomaliesFlagged      prometheus.Counter
	AnomaliesCorrected    prometheus.Counter
	QueueDepth            prometheus.Gauge
	QueueJobs             *prometheus.CounterVec
	ReplayCacheHits       prometheus.Counter
	StoreOperationLatency *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry, so tests and
// multiple instances never collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ModelAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_attempts_total",
			Help: "Language-model calls by retry phase and outcome",
		}, []string{"phase", "outcome"}),
		ModelAttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_attempt_duration_seconds",
			Help:    "Latency of one language-model call",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		Interpretations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interpretations_total",
			Help: "Interpreted messages by final status and eta source",
		}, []string{"status", "eta_source"}),
		InterpretDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interpretation_duration_seconds",
			Help:    "End-to-end time to interpret one message",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 90},
		}),
		AnomaliesFlagged: f.NewCounter(prometheus.CounterOpts{
			Name: "eta_anomalies_flagged_total",
			Help: "ETAs flagged as implausible against bounds or peers",
		}),
		AnomaliesCorrected: f.NewCounter(prometheus.CounterOpts{
			Name: "eta_anomalies_corrected_total",
			Help: "Flagged ETAs replaced by an accepted correction",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Messages waiting in the async ingest queue",
		}),
		QueueJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_queue_jobs_total",
			Help: "Async ingest jobs by result",
		}, []string{"result"}),
		ReplayCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "interpretation_cache_hits_total",
			Help: "Messages answered from the replay cache",
		}),
		StoreOperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Time taken for persistence operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// ObserveAttempt implements llm.AttemptObserver.
func (m *Metrics) ObserveAttempt(phase llm.Phase, outcome string, elapsed time.Duration) {
	m.ModelAttempts.WithLabelValues(string(phase), outcome).Inc()
	m.ModelAttemptDuration.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
}

// ObserveInterpretation implements pipeline.Recorder.
func (m *Metrics) ObserveInterpretation(res pipeline.Result, anomaly *pipeline.AnomalyReport, elapsed time.Duration) {
	m.Interpretations.WithLabelValues(string(res.Status), string(res.ETASource)).Inc()
	m.InterpretDuration.Observe(elapsed.Seconds())
	if anomaly != nil && anomaly.Flagged {
		m.AnomaliesFlagged.Inc()
		if anomaly.Corrected {
			m.AnomaliesCorrected.Inc()
		}
	}
}

// CacheHit implements interpret.CacheObserver.
func (m *Metrics) CacheHit() {
	m.ReplayCacheHits.Inc()
}

// QueueDepthChanged and JobFinished implement async.Observer.
func (m *Metrics) QueueDepthChanged(depth int) {
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) JobFinished(result string) {
	m.QueueJobs.WithLabelValues(result).Inc()
}

// ObserveStore times a persistence call.
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	m.StoreOperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
