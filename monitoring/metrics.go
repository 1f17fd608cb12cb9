// Package monitoring exposes service metrics and the live prediction feed.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"obesityserve/inference"
)

const namespace = "obesity"

// Metrics records inference outcomes on its own registry. It implements
// inference.Observer.
type Metrics struct {
	registry *prometheus.Registry

	predictions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	latency     prometheus.Histogram
	confidence  prometheus.Histogram
	cacheHits   prometheus.Counter
}

// NewMetrics builds the collectors. ready backs the model_ready gauge and may
// be nil.
func NewMetrics(ready func() bool) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		// Labels: class, model_version
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "predictions_total",
			Help:      "Predictions served by predicted class",
		}, []string{"class", "model_version"}),

		// Labels: kind (validation, encoding, model_unavailable, model), field
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "errors_total",
			Help:      "Rejected or failed predictions by error kind and field",
		}, []string{"kind", "field"}),

		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "latency_seconds",
			Help:      "Encode and classify latency in seconds",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}),

		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "confidence",
			Help:      "Distribution of prediction confidence",
			Buckets:   []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "cache_hits_total",
			Help:      "Predictions answered from the prediction cache",
		}),
	}

	if ready != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      "1 when a model artifact is loaded",
		}, func() float64 {
			if ready() {
				return 1
			}
			return 0
		})
	}
	return m
}

func (m *Metrics) ObserveOutcome(o inference.Outcome) {
	m.predictions.WithLabelValues(o.Prediction.PredictedClass, o.ModelVersion).Inc()
	m.latency.Observe(o.Latency.Seconds())
	m.confidence.Observe(o.Prediction.Confidence)
	if o.Cached {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) ObserveError(kind, field string) {
	m.errors.WithLabelValues(kind, field).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
