// SPDX-License-Identifier: GPL-3.0-only

// Package metrics exports the state of the control loops to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
	"github.com/shini4i/asd-adaptive-brightness/internal/output"
)

const namespace = "asd"

// Metrics records control loop state. It owns its registry so that several
// instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	ambientLux     *prometheus.GaugeVec
	brightness     *prometheus.GaugeVec
	learnedSamples *prometheus.GaugeVec
	pending        *prometheus.GaugeVec
	learnedTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	rampsTotal     *prometheus.CounterVec
}

var _ output.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ambientLux: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ambient_lux",
			Help:      "Filtered ambient light seen by the control loop.",
		}, []string{"output"}),
		brightness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "brightness",
			Help:      "Last known device brightness in device units.",
		}, []string{"output"}),
		learnedSamples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "learned_samples",
			Help:      "Number of learned brightness preferences.",
		}, []string{"output"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending",
			Help:      "1 while a user adjustment awaits its cooldown.",
		}, []string{"output"}),
		learnedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_learned_total",
			Help:      "Total brightness preferences learned.",
		}, []string{"output"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adjust_errors_total",
			Help:      "Total failed sensing cycles by error kind.",
		}, []string{"output", "kind"}),
		rampsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ramps_total",
			Help:      "Total brightness transitions towards a prediction.",
		}, []string{"output"}),
	}

	m.registry.MustRegister(
		m.ambientLux,
		m.brightness,
		m.learnedSamples,
		m.pending,
		m.learnedTotal,
		m.errorsTotal,
		m.rampsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStatus updates the gauges of an output.
func (m *Metrics) ObserveStatus(name string, status controller.Status) {
	m.ambientLux.WithLabelValues(name).Set(float64(status.Lux))
	m.brightness.WithLabelValues(name).Set(float64(status.Brightness))
	m.learnedSamples.WithLabelValues(name).Set(float64(status.Samples))

	pending := 0.0
	if status.Pending {
		pending = 1
	}
	m.pending.WithLabelValues(name).Set(pending)
}

// ObserveLearned counts a learned sample.
func (m *Metrics) ObserveLearned(name string) {
	m.learnedTotal.WithLabelValues(name).Inc()
}

// ObserveRamp counts a brightness transition.
func (m *Metrics) ObserveRamp(name string) {
	m.rampsTotal.WithLabelValues(name).Inc()
}

// ObserveError counts a failed cycle.
func (m *Metrics) ObserveError(name, kind string) {
	m.errorsTotal.WithLabelValues(name, kind).Inc()
}

// Forget drops the gauges of a removed output. Counters are kept so that
// rates stay correct when the output comes back.
func (m *Metrics) Forget(name string) {
	m.ambientLux.DeleteLabelValues(name)
	m.brightness.DeleteLabelValues(name)
	m.learnedSamples.DeleteLabelValues(name)
	m.pending.DeleteLabelValues(name)
}
