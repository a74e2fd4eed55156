// Package observe provides keel middleware that export container activity
// to Prometheus and OpenTelemetry.
package observe

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/keel"
)

// Outcome label values of the resolve counter.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// MetricsOption configures Metrics.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	namespace string
	buckets   []float64
}

// WithNamespace sets the metric namespace. The default is "keel".
func WithNamespace(ns string) MetricsOption {
	return func(c *metricsConfig) {
		c.namespace = ns
	}
}

// WithBuckets sets the buckets of the activation duration histogram.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *metricsConfig) {
		c.buckets = buckets
	}
}

// Metrics is a keel.Middleware that records resolves, activations and live
// lifetime scopes as Prometheus metrics.
type Metrics struct {
	resolves    *prometheus.CounterVec
	activations *prometheus.HistogramVec
	scopes      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) (*Metrics, error) {
	cfg := metricsConfig{
		namespace: "keel",
		buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "resolves_total",
			Help:      "Top-level resolves by service and outcome.",
		}, []string{"service", "outcome"}),
		activations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "activation_duration_seconds",
			Help:      "Time spent building instances.",
			Buckets:   cfg.buckets,
		}, []string{"service", "lifetime"}),
		scopes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.namespace,
			Name:      "lifetime_scopes",
			Help:      "Child lifetime scopes currently open.",
		}),
	}

	for _, c := range []prometheus.Collector{m.resolves, m.activations, m.scopes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// BeforeResolve implements keel.Middleware.
func (m *Metrics) BeforeResolve(context.Context, keel.Service) error {
	return nil
}

// AfterResolve implements keel.Middleware.
func (m *Metrics) AfterResolve(_ context.Context, svc keel.Service, _ any, err error) error {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.resolves.WithLabelValues(svc.String(), outcome).Inc()
	return nil
}

// OnActivation implements keel.Middleware.
func (m *Metrics) OnActivation(_ context.Context, info keel.ActivationInfo) {
	m.activations.WithLabelValues(info.Service.String(), info.Lifetime.String()).
		Observe(info.Duration.Seconds())
}

// OnScopeBegin implements keel.Middleware.
func (m *Metrics) OnScopeBegin(any) {
	m.scopes.Inc()
}

// OnScopeEnd implements keel.Middleware.
func (m *Metrics) OnScopeEnd(tag any) {
	if tag == keel.RootTag {
		return
	}
	m.scopes.Dec()
}
