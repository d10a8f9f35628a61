package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reconcile outcomes recorded by ObserveReconcile.
const (
	OutcomeInstalled   = "installed"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
	OutcomeAborted     = "aborted"
)

// Metrics holds the prometheus collectors navlock exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reconcilesTotal *prometheus.CounterVec
	installedRules  *prometheus.GaugeVec
	droppedEntries  prometheus.Counter
	allowedEntries  prometheus.Gauge
	allowedSites    prometheus.Gauge
	decisionsTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg, or with the
// default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reconcilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "navlock_reconciles_total", Help: "Rule set replace cycles by outcome"},
			[]string{"outcome"},
		),
		installedRules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "navlock_installed_rules", Help: "Rules in the last installed rule set by action"},
			[]string{"action"},
		),
		droppedEntries: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "navlock_dropped_entries_total", Help: "Allow-list entries dropped by validation or dedup"},
		),
		allowedEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "navlock_allowlist_entries", Help: "Allow-list entries that survived the last cycle"},
		),
		allowedSites: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "navlock_allowlist_sites", Help: "Registrable domains covered by the last allow-list"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "navlock_engine_decisions_total", Help: "Local engine navigation decisions by action"},
			[]string{"action"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reconcilesTotal, m.installedRules, m.droppedEntries, m.allowedEntries, m.allowedSites, m.decisionsTotal)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveReconcile counts one cycle outcome.
func (m *Metrics) ObserveReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcilesTotal.WithLabelValues(outcome).Inc()
}

// SetInstalled records the per-action rule counts of the installed set.
func (m *Metrics) SetInstalled(counts map[string]int) {
	if m == nil {
		return
	}
	m.installedRules.Reset()
	for action, n := range counts {
		m.installedRules.WithLabelValues(action).Set(float64(n))
	}
}

// AddDropped counts allow-list entries that were rejected by validation or
// merged into a later duplicate.
func (m *Metrics) AddDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedEntries.Add(float64(n))
}

// SetAllowList records the size of the last normalized allow-list.
func (m *Metrics) SetAllowList(entries, sites int) {
	if m == nil {
		return
	}
	m.allowedEntries.Set(float64(entries))
	m.allowedSites.Set(float64(sites))
}

// ObserveDecision counts one engine decision.
func (m *Metrics) ObserveDecision(action string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(action).Inc()
}
