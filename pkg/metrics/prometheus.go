package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samples         *prometheus.CounterVec
	rejectedSamples *prometheus.CounterVec
	eventsFired     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	probability     *prometheus.GaugeVec
	registrySize    prometheus.Gauge
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		samples: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cointrend_samples_total",
				Help: "Total number of samples applied to symbol signals",
			},
			[]string{"provider", "symbol"},
		),
		rejectedSamples: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cointrend_rejected_samples_total",
				Help: "Total number of samples rejected as out of range",
			},
			[]string{"provider"},
		),
		eventsFired: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cointrend_events_fired_total",
				Help: "Total number of percentile crossing events",
			},
			[]string{"symbol"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cointrend_notifications_total",
				Help: "Notification deliveries by notifier and result",
			},
			[]string{"notifier", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cointrend_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		probability: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cointrend_symbol_probability",
				Help: "Probability of the last fired event per symbol",
			},
			[]string{"symbol"},
		),
		registrySize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cointrend_registry_symbols",
				Help: "Number of live symbol signals",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cointrend_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSample(provider, symbol string) {
	r.samples.WithLabelValues(provider, symbol).Inc()
}

func (r *Recorder) RecordRejectedSample(provider string) {
	r.rejectedSamples.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordEvent(symbol string) {
	r.eventsFired.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordProbability(symbol string, p float64) {
	r.probability.WithLabelValues(symbol).Set(p)
}

// RecordNotification records one notifier outcome, result is "ok" or "error".
func (r *Recorder) RecordNotification(notifier, result string) {
	r.notifications.WithLabelValues(notifier, result).Inc()
}

func (r *Recorder) RecordRegistrySize(n int) {
	r.registrySize.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSample(string, string)       {}
func (Nop) RecordRejectedSample(string)       {}
func (Nop) RecordEvent(string)                {}
func (Nop) RecordProbability(string, float64) {}
func (Nop) RecordNotification(string, string) {}
func (Nop) RecordRegistrySize(int)            {}
func (Nop) RecordError(string)                {}
func (Nop) RecordLatency(string, float64)     {}
