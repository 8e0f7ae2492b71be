// Package metrics provides Prometheus metrics collection for the ledger.
// All recording methods are safe to call on a nil *Collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relayledger"

// Collector holds all Prometheus metrics for the ledger.
type Collector struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Usage metrics
	UsageMerges        *prometheus.CounterVec
	UsageRelays        prometheus.Counter
	UsageMergeDuration prometheus.Histogram

	// Payment status metrics
	StatusUpdates     *prometheus.CounterVec
	Cascades          *prometheus.CounterVec
	CascadeFailures   *prometheus.CounterVec
	NotificationFails *prometheus.CounterVec

	// Sweep metrics
	SweepRuns     prometheus.Counter
	SweepDuration prometheus.Histogram
	SweepOrgs     *prometheus.CounterVec
	SweepLastRun  prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		UsageMerges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_merges_total",
				Help:      "Usage merges by result",
			},
			[]string{"result"},
		),
		UsageRelays: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_relays_total",
				Help:      "Relays merged into daily aggregates",
			},
		),
		UsageMergeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "usage_merge_duration_seconds",
				Help:      "Latency of the atomic usage upsert",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		StatusUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_status_updates_total",
				Help:      "Payment status evaluations by stored transition",
			},
			[]string{"from", "to"},
		),
		Cascades: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cascades_total",
				Help:      "Committed suspension and reinstatement cascades",
			},
			[]string{"kind"},
		),
		CascadeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cascade_failures_total",
				Help:      "Cascades rolled back after a store failure",
			},
			[]string{"kind"},
		),
		NotificationFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Owner notifications that could not be delivered",
			},
			[]string{"kind"},
		),
		SweepRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_runs_total",
				Help:      "Completed suspension sweeps",
			},
		),
		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Suspension sweep duration in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		SweepOrgs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_orgs_total",
				Help:      "Organizations visited by sweeps, by outcome",
			},
			[]string{"outcome"},
		),
		SweepLastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sweep_last_run_timestamp",
				Help:      "Unix timestamp of the last completed sweep",
			},
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

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(method, route, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, status).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveMerge records one usage merge.
func (c *Collector) ObserveMerge(relays int64, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.UsageMergeDuration.Observe(d.Seconds())
	if err != nil {
		c.UsageMerges.WithLabelValues("error").Inc()
		return
	}
	c.UsageMerges.WithLabelValues("ok").Inc()
	c.UsageRelays.Add(float64(relays))
}

// ObserveStatus records one stored status evaluation.
func (c *Collector) ObserveStatus(from, to string) {
	if c == nil {
		return
	}
	c.StatusUpdates.WithLabelValues(from, to).Inc()
}

// ObserveCascade records a committed cascade.
func (c *Collector) ObserveCascade(kind string) {
	if c == nil {
		return
	}
	c.Cascades.WithLabelValues(kind).Inc()
}

// ObserveCascadeFailure records a rolled-back cascade.
func (c *Collector) ObserveCascadeFailure(kind string) {
	if c == nil {
		return
	}
	c.CascadeFailures.WithLabelValues(kind).Inc()
}

// ObserveNotificationFailure records an undelivered notification.
func (c *Collector) ObserveNotificationFailure(kind string) {
	if c == nil {
		return
	}
	c.NotificationFails.WithLabelValues(kind).Inc()
}

// SweepOutcomes are the per-org tallies of one sweep.
type SweepOutcomes struct {
	Suspended  int
	Reinstated int
	Unchanged  int
	Failed     int
}

// ObserveSweep records a completed sweep.
func (c *Collector) ObserveSweep(d time.Duration, o SweepOutcomes, at time.Time) {
	if c == nil {
		return
	}
	c.SweepRuns.Inc()
	c.SweepDuration.Observe(d.Seconds())
	c.SweepOrgs.WithLabelValues("suspended").Add(float64(o.Suspended))
	c.SweepOrgs.WithLabelValues("reinstated").Add(float64(o.Reinstated))
	c.SweepOrgs.WithLabelValues("unchanged").Add(float64(o.Unchanged))
	c.SweepOrgs.WithLabelValues("failed").Add(float64(o.Failed))
	c.SweepLastRun.Set(float64(at.Unix()))
}

// ObserveConfigReload records a config reload attempt.
func (c *Collector) ObserveConfigReload(err error, at time.Time) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}
