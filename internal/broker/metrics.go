package broker

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	sessions prometheus.Gauge
	rejects  *prometheus.CounterVec
	relays   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "creatorhub_broker_sessions",
			Help: "Open STOMP client sessions",
		}),
		rejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creatorhub_broker_rejected_total",
			Help: "Rejected connections, frames and chat sends by reason",
		}, []string{"reason"}),
		relays: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creatorhub_broker_relayed_total",
			Help: "Chat messages relayed to STOMP destinations by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) disconnected() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.rejects.WithLabelValues(reason).Inc()
}

func (m *Metrics) relayed(destination string) {
	if m == nil {
		return
	}
	kind := "queue"
	if strings.HasPrefix(destination, "/topic/") {
		kind = "topic"
	}
	m.relays.WithLabelValues(kind).Inc()
}
