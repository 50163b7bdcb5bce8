// Package metrics exposes device activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/relay-sensor/internal/button"
	"github.com/sweeney/relay-sensor/internal/report"
)

const namespace = "relay_sensor"

// Metrics implements device.Observer and records into Prometheus collectors.
type Metrics struct {
	buttonEvents   *prometheus.CounterVec
	reports        *prometheus.CounterVec
	sampleFailures prometheus.Counter
	voltage        prometheus.Gauge
	battery        prometheus.Gauge
	relay          prometheus.Gauge
	joined         prometheus.Gauge
	linkConnected  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		buttonEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_events_total",
			Help:      "Debounced button gestures by kind.",
		}, []string{"event"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Threshold crossings by attribute and outcome.",
		}, []string{"attribute", "outcome"}),
		sampleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Voltage reads where every oversample failed.",
		}),
		voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_millivolts",
			Help:      "Last calibrated battery voltage.",
		}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_percent",
			Help:      "Last estimated battery charge.",
		}),
		relay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_on",
			Help:      "1 while the relay is energised.",
		}),
		joined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_joined",
			Help:      "1 while the device is joined.",
		}),
		linkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_connected",
			Help:      "1 while the network link is up.",
		}),
	}
	reg.MustRegister(
		m.buttonEvents,
		m.reports,
		m.sampleFailures,
		m.voltage,
		m.battery,
		m.relay,
		m.joined,
		m.linkConnected,
	)
	return m
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RelayChanged sets the relay gauge.
func (m *Metrics) RelayChanged(on bool) { m.relay.Set(boolValue(on)) }

// JoinChanged sets the joined gauge.
func (m *Metrics) JoinChanged(joined bool) { m.joined.Set(boolValue(joined)) }

// ButtonPressed counts a gesture.
func (m *Metrics) ButtonPressed(e button.Event) {
	m.buttonEvents.WithLabelValues(string(e)).Inc()
}

// VoltageMeasured sets the voltage gauges.
func (m *Metrics) VoltageMeasured(mv int32, batteryPercent uint8) {
	m.voltage.Set(float64(mv))
	m.battery.Set(float64(batteryPercent))
}

// VoltageFailed counts a failed read.
func (m *Metrics) VoltageFailed(error) { m.sampleFailures.Inc() }

// ReportDone counts a threshold crossing.
func (m *Metrics) ReportDone(attribute string, outcome report.Outcome) {
	m.reports.WithLabelValues(attribute, string(outcome)).Inc()
}

// SetLinkConnected sets the link gauge.
func (m *Metrics) SetLinkConnected(connected bool) {
	m.linkConnected.Set(boolValue(connected))
}
