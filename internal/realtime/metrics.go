package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	state        prometheus.Gauge
	attempts     *prometheus.CounterVec
	exhausted    prometheus.Counter
	received     *prometheus.CounterVec
	sendFailures prometheus.Counter
}

// NewMetrics registers the channel metrics with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		state: factory.NewGauge(prometheus.GaugeOpts{
			Name: "creatorhub_realtime_state",
			Help: "Realtime channel state: 0 disconnected, 1 connecting, 2 connected",
		}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creatorhub_realtime_connect_attempts_total",
			Help: "Transport connect attempts by result",
		}, []string{"result"}),
		exhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "creatorhub_realtime_reconnect_exhausted_total",
			Help: "Times the reconnect budget ran out",
		}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creatorhub_realtime_messages_received_total",
			Help: "Inbound messages by body format",
		}, []string{"format"}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "creatorhub_realtime_send_failures_total",
			Help: "Outbound messages that could not be published",
		}),
	}
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) connectAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.attempts.WithLabelValues(result).Inc()
}

func (m *Metrics) reconnectExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}

func (m *Metrics) messageReceived(parsed bool) {
	if m == nil {
		return
	}
	format := "raw"
	if parsed {
		format = "json"
	}
	m.received.WithLabelValues(format).Inc()
}

func (m *Metrics) sendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}
