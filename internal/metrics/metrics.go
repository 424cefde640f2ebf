// Package metrics exposes Prometheus instruments for the polling loops and the
// publish pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "factsync"

// Metrics holds every instrument on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	iterations    *prometheus.CounterVec
	failures      *prometheus.GaugeVec
	escalations   *prometheus.CounterVec
	lastSuccess   *prometheus.GaugeVec
	publishes     *prometheus.CounterVec
	publishRetry  *prometheus.CounterVec
	ipChanges     prometheus.Counter
	watcherChecks *prometheus.CounterVec
}

// New creates the instruments and registers them with Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_iterations_total",
			Help:      "Poll loop iterations by outcome.",
		}, []string{"loop", "outcome"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_consecutive_failures",
			Help:      "Current consecutive failure count per loop.",
		}, []string{"loop"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_escalations_total",
			Help:      "Times a loop entered the long cooldown.",
		}, []string{"loop"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_last_success_timestamp_seconds",
			Help:      "Unix time of the last published or skipped iteration.",
		}, []string{"loop"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Publish calls by store key and result.",
		}, []string{"key", "result"}),
		publishRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_retries_total",
			Help:      "Write attempts retried after a connection failure.",
		}, []string{"key"}),
		ipChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ip_changes_total",
			Help:      "Public address changes seen by the watcher.",
		}),
		watcherChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_checks_total",
			Help:      "Watcher checks by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.iterations,
		m.failures,
		m.escalations,
		m.lastSuccess,
		m.publishes,
		m.publishRetry,
		m.ipChanges,
		m.watcherChecks,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordIteration(loop, outcome string) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(loop, outcome).Inc()
}

func (m *Metrics) SetFailures(loop string, n int) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(loop).Set(float64(n))
}

func (m *Metrics) RecordEscalation(loop string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(loop).Inc()
}

func (m *Metrics) RecordSuccess(loop string, unixSeconds float64) {
	if m == nil {
		return
	}
	m.lastSuccess.WithLabelValues(loop).Set(unixSeconds)
}

func (m *Metrics) RecordPublish(key, result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(key, result).Inc()
}

func (m *Metrics) RecordPublishRetry(key string) {
	if m == nil {
		return
	}
	m.publishRetry.WithLabelValues(key).Inc()
}

func (m *Metrics) RecordIPChange() {
	if m == nil {
		return
	}
	m.ipChanges.Inc()
}

func (m *Metrics) RecordWatcherCheck(result string) {
	if m == nil {
		return
	}
	m.watcherChecks.WithLabelValues(result).Inc()
}
