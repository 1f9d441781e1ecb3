// Package prometheus provides a valuez.MetricsProvider backed by Prometheus
// collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zoobzio/valuez"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "valuez").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for change and action durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the provider.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) { c.Subsystem = subsystem }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

// Provider records store activity. Register one per registry; creating two
// against the same registry panics on duplicate collectors.
type Provider struct {
	fieldChanges   *prometheus.CounterVec
	fieldDuration  *prometheus.HistogramVec
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	snapshots      *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
}

// New creates a Provider and registers its collectors.
func New(opts ...Option) *Provider {
	config := Config{
		Namespace: "valuez",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Provider{
		fieldChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "field_changes_total",
			Help:        "Total number of committed field changes",
			ConstLabels: config.ConstLabels,
		}, []string{"store", "field", "valid"}),

		fieldDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "field_change_duration_seconds",
			Help:        "Field change duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"store", "field"}),

		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "actions_total",
			Help:        "Total number of store actions",
			ConstLabels: config.ConstLabels,
		}, []string{"store", "action", "status"}),

		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "action_duration_seconds",
			Help:        "Store action duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"store", "action"}),

		snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "snapshots_total",
			Help:        "Total number of emitted store snapshots",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "rollbacks_total",
			Help:        "Total number of rolled back transactions",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),
	}
}

// OnFieldChange implements valuez.MetricsProvider.
func (p *Provider) OnFieldChange(store, field string, valid bool, duration time.Duration) {
	status := "false"
	if valid {
		status = "true"
	}
	p.fieldChanges.WithLabelValues(store, field, status).Inc()
	p.fieldDuration.WithLabelValues(store, field).Observe(duration.Seconds())
}

// OnAction implements valuez.MetricsProvider.
func (p *Provider) OnAction(store, action string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.actions.WithLabelValues(store, action, status).Inc()
	p.actionDuration.WithLabelValues(store, action).Observe(duration.Seconds())
}

// OnSnapshot implements valuez.MetricsProvider.
func (p *Provider) OnSnapshot(store string) {
	p.snapshots.WithLabelValues(store).Inc()
}

// OnRollback implements valuez.MetricsProvider.
func (p *Provider) OnRollback(store string) {
	p.rollbacks.WithLabelValues(store).Inc()
}

var _ valuez.MetricsProvider = (*Provider)(nil)
