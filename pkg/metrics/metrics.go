// Package metrics exposes simulator activity as Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional *Metrics without checking.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

const namespace = "possim"

// Metrics holds the simulator collectors.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec   // By device, operation and result (ok/error/stale)
	operationDuration *prometheus.HistogramVec // By operation
	deviceConnected   *prometheus.GaugeVec     // By device
	faultsTotal       *prometheus.CounterVec   // By device and error type
	reconnectsTotal   *prometheus.CounterVec   // By device and result (attempt/recovered/failed)
	eventsTotal       *prometheus.CounterVec   // By device type
	patternsMatched   *prometheus.CounterVec   // By pattern
	flowsTotal        *prometheus.CounterVec   // By flow and status
	historySize       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "operations_total",
			Help:      "Total number of device operations by result",
		}, []string{"device", "operation", "result"}),

		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "operation_duration_seconds",
			Help:      "Device operation duration in seconds, including the simulated response delay",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),

		deviceConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "connected",
			Help:      "Whether the device is connected (1) or not (0)",
		}, []string{"device"}),

		faultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "faults_total",
			Help:      "Total number of device error events by type",
		}, []string{"device", "type"}),

		reconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "reconnects_total",
			Help:      "Reconnection attempts and outcomes",
		}, []string{"device", "result"}),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "events_total",
			Help:      "Total number of events appended to history",
		}, []string{"device_type"}),

		patternsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "pattern_matches_total",
			Help:      "Total number of pattern matches",
		}, []string{"pattern"}),

		flowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "instances_total",
			Help:      "Flow instances by status transition",
		}, []string{"flow", "status"}),

		historySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "size",
			Help:      "Number of retained events",
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.deviceConnected,
		m.faultsTotal,
		m.reconnectsTotal,
		m.eventsTotal,
		m.patternsMatched,
		m.flowsTotal,
		m.historySize,
	}
}

// ObserveOperation records a finished operation.
func (m *Metrics) ObserveOperation(device, operation string, stale bool, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case stale:
		result = "stale"
	}
	m.operationsTotal.WithLabelValues(device, operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetConnected records a device's connection state.
func (m *Metrics) SetConnected(device string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.deviceConnected.WithLabelValues(device).Set(v)
}

// ForgetDevice removes a device's connection gauge.
func (m *Metrics) ForgetDevice(device string) {
	if m == nil {
		return
	}
	m.deviceConnected.DeleteLabelValues(device)
}

// CountFault records a device error event.
func (m *Metrics) CountFault(device, errType string) {
	if m == nil {
		return
	}
	m.faultsTotal.WithLabelValues(device, errType).Inc()
}

// CountReconnect records a reconnection step: attempt, recovered or failed.
func (m *Metrics) CountReconnect(device, result string) {
	if m == nil {
		return
	}
	m.reconnectsTotal.WithLabelValues(device, result).Inc()
}

// CountFlow records a flow status transition.
func (m *Metrics) CountFlow(flow, status string) {
	if m == nil {
		return
	}
	m.flowsTotal.WithLabelValues(flow, status).Inc()
}

// EventAppended counts an event accepted into history.
func (m *Metrics) EventAppended(e model.Event, size int) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(e.DeviceType())).Inc()
	m.historySize.Set(float64(size))
}

// PatternMatched counts a pattern match.
func (m *Metrics) PatternMatched(pattern string) {
	if m == nil {
		return
	}
	m.patternsMatched.WithLabelValues(pattern).Inc()
}
