package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics exposes counters/histograms for the reply pipeline.
// All observer methods tolerate a nil receiver so metrics stay optional.
type PipelineMetrics struct {
	acceptedTotal    *prometheus.CounterVec
	blockedTotal     *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	correctorUsed    *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		acceptedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyengine",
			Subsystem: "pipeline",
			Name:      "accepted_total",
			Help:      "Total accepted replies",
		}, []string{"mode"}),
		blockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyengine",
			Subsystem: "pipeline",
			Name:      "blocked_total",
			Help:      "Total blocked requests by reason",
		}, []string{"reason"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyengine",
			Subsystem: "pipeline",
			Name:      "provider_failures_total",
			Help:      "Provider call failures by stage",
		}, []string{"stage"}),
		correctorUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyengine",
			Subsystem: "pipeline",
			Name:      "corrector_used_total",
			Help:      "Accepted corrector outputs by backend",
		}, []string{"backend"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replyengine",
			Subsystem: "pipeline",
			Name:      "request_latency_seconds",
			Help:      "End-to-end pipeline latency",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.acceptedTotal, m.blockedTotal, m.providerFailures, m.correctorUsed, m.requestLatency)
	return m
}

func (m *PipelineMetrics) ObserveAccepted(mode, correctorBackend string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.acceptedTotal.WithLabelValues(mode).Inc()
	m.requestLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	if correctorBackend != "" {
		m.correctorUsed.WithLabelValues(correctorBackend).Inc()
	}
}

func (m *PipelineMetrics) ObserveBlocked(reason string) {
	if m == nil {
		return
	}
	m.blockedTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) ObserveProviderFailure(stage string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(stage).Inc()
}
