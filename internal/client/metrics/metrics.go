// Package metrics exposes Prometheus instruments for the offline layer.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "casekeeper"

type Metrics struct {
	decryptFailures  prometheus.Counter
	queueDepth       prometheus.Gauge
	preQueueDepth    prometheus.Gauge
	delivered        prometheus.Counter
	deliveryFailures *prometheus.CounterVec
	gateOpen         prometheus.Gauge
	sessionAborts    prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Records that failed authentication on read.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Operations waiting in the active user's queue.",
		}),
		preQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prequeue_depth",
			Help:      "Operations submitted before login.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_delivered_total",
			Help:      "Operations acknowledged by the server.",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed delivery attempts by reason.",
		}, []string{"reason"}),
		gateOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_open",
			Help:      "1 when the queue gate is open.",
		}),
		sessionAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_aborts_total",
			Help:      "Sessions ended because the key stopped verifying.",
		}),
	}

	reg.MustRegister(
		m.decryptFailures,
		m.queueDepth,
		m.preQueueDepth,
		m.delivered,
		m.deliveryFailures,
		m.gateOpen,
		m.sessionAborts,
	)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) DecryptFailed() {
	if m == nil {
		return
	}
	m.decryptFailures.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetPreQueueDepth(n int) {
	if m == nil {
		return
	}
	m.preQueueDepth.Set(float64(n))
}

func (m *Metrics) Delivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *Metrics) DeliveryFailed(reason string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetGateOpen(open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.gateOpen.Set(v)
}

func (m *Metrics) SessionAborted() {
	if m == nil {
		return
	}
	m.sessionAborts.Inc()
}
