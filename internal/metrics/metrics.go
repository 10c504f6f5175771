// Package metrics holds the Prometheus collectors of the delivery path.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parley"

type Metrics struct {
	MessagesAppended  *prometheus.CounterVec
	DeliveryDropped   *prometheus.CounterVec
	FanoutRecipients  prometheus.Histogram
	FanoutFailures    prometheus.Counter
	SignalsThrottled  prometheus.Counter
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	SendDuration      prometheus.Histogram
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Send attempts by outcome.",
		}, []string{"outcome"}),
		DeliveryDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_dropped_total",
			Help:      "Room events not enqueued to a subscriber connection.",
		}, []string{"event_type"}),
		FanoutRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_recipients",
			Help:      "Local subscribers reached per room event.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		FanoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_failures_total",
			Help:      "Room events that could not be handed to the broadcaster.",
		}),
		SignalsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_throttled_total",
			Help:      "Typing and reaction pulse frames dropped by the per-connection limiter.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections on this node.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_rooms",
			Help:      "Rooms with at least one local subscriber.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time from accepted send to broadcast handoff.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.MessagesAppended,
			m.DeliveryDropped,
			m.FanoutRecipients,
			m.FanoutFailures,
			m.SignalsThrottled,
			m.ActiveConnections,
			m.ActiveRooms,
			m.SendDuration,
		)
	}
	return m
}

func (m *Metrics) SendOutcome(outcome string) {
	if m == nil {
		return
	}
	m.MessagesAppended.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Dropped(eventType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DeliveryDropped.WithLabelValues(eventType).Add(float64(n))
}

func (m *Metrics) Fanout(delivered int) {
	if m == nil {
		return
	}
	m.FanoutRecipients.Observe(float64(delivered))
}

func (m *Metrics) FanoutFailed() {
	if m == nil {
		return
	}
	m.FanoutFailures.Inc()
}

func (m *Metrics) SignalThrottled() {
	if m == nil {
		return
	}
	m.SignalsThrottled.Inc()
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(n))
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.ActiveRooms.Set(float64(n))
}

func (m *Metrics) ObserveSend(seconds float64) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(seconds)
}
