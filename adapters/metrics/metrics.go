// Package metrics provides Prometheus metrics collection for modelform.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/modelform/ports"
)

const namespace = "modelform"

// Collector holds all Prometheus metrics for modelform.
type Collector struct {
	// Action metrics
	ActionsTotal    *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	ActionsInFlight prometheus.Gauge
	ActionsDropped  *prometheus.CounterVec

	// Validation metrics
	ValidationFailures *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of settled action invocations",
			},
			[]string{"model", "action", "outcome"},
		),
		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Action invocation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"model", "action"},
		),
		ActionsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "actions_in_flight",
				Help:      "Number of action invocations currently pending",
			},
		),
		ActionsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_dropped_total",
				Help:      "Total number of duplicate invocations dropped while pending",
			},
			[]string{"model", "action"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of rules reported invalid",
			},
			[]string{"field", "rule"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// ActionStarted implements ports.ActionMetrics.
func (c *Collector) ActionStarted(model, action string) {
	c.ActionsInFlight.Inc()
}

// ActionFinished implements ports.ActionMetrics.
func (c *Collector) ActionFinished(model, action, outcome string, d time.Duration) {
	c.ActionsInFlight.Dec()
	c.ActionsTotal.WithLabelValues(model, action, outcome).Inc()
	c.ActionDuration.WithLabelValues(model, action).Observe(d.Seconds())
}

// ActionDropped implements ports.ActionMetrics.
func (c *Collector) ActionDropped(model, action string) {
	c.ActionsDropped.WithLabelValues(model, action).Inc()
}

// ValidationFailed implements ports.ActionMetrics.
func (c *Collector) ValidationFailed(field, rule string) {
	c.ValidationFailures.WithLabelValues(field, rule).Inc()
}

// ConfigReloaded records the outcome of a config reload.
func (c *Collector) ConfigReloaded(err error, at time.Time) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

var _ ports.ActionMetrics = (*Collector)(nil)
