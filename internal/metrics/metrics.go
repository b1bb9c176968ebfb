// Package metrics provides the Prometheus metrics exported by the service.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics contains the service's collectors. A nil *Metrics records nothing.
type Metrics struct {
	PredictionTotal   *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	HTTPRequestTotal  *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register service metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriml_predictions_total",
			Help: "Total predictions partitioned by model and outcome.",
		},
		[]string{"model", "outcome"},
	)
	m.InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agriml_inference_duration_seconds",
			Help:    "Time spent in model inference.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"model"},
	)
	m.HTTPRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriml_http_requests_total",
			Help: "HTTP requests partitioned by route, method and status code.",
		},
		[]string{"route", "method", "status"},
	)
	m.HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agriml_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionTotal.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.HTTPRequestTotal.Describe(ch)
	m.HTTPDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionTotal.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.HTTPRequestTotal.Collect(ch)
	m.HTTPDuration.Collect(ch)
}

// ObservePrediction counts one prediction. d is only recorded for successes.
func (m *Metrics) ObservePrediction(model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PredictionTotal.WithLabelValues(model, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.InferenceDuration.WithLabelValues(model).Observe(d.Seconds())
	}
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
