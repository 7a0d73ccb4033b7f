package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes relay counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Lookups           *prometheus.CounterVec
	AdminOps          *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	Codes             prometheus.Gauge
	Subscribers       prometheus.Gauge
}

// NewMetrics registers relay metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coderelay_lookups_total",
			Help: "Code lookups by result (hit, miss).",
		}, []string{"result"}),
		AdminOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coderelay_admin_ops_total",
			Help: "Admin operations by action and outcome.",
		}, []string{"action", "outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coderelay_broadcast_deliveries_total",
			Help: "Broadcast delivery attempts by result (ok, fail).",
		}, []string{"result"}),
		BroadcastDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coderelay_broadcast_duration_seconds",
			Help:    "Wall time of a full broadcast fan-out.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		Codes: f.NewGauge(prometheus.GaugeOpts{
			Name: "coderelay_codes",
			Help: "Number of registered codes.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "coderelay_subscribers",
			Help: "Number of known subscribers.",
		}),
	}
}

func (m *Metrics) lookup(found bool) {
	if m == nil {
		return
	}
	if found {
		m.Lookups.WithLabelValues("hit").Inc()
	} else {
		m.Lookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) adminOp(action string, outcome Outcome) {
	if m == nil {
		return
	}
	m.AdminOps.WithLabelValues(action, string(outcome)).Inc()
}

func (m *Metrics) delivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Deliveries.WithLabelValues("ok").Inc()
	} else {
		m.Deliveries.WithLabelValues("fail").Inc()
	}
}

func (m *Metrics) broadcastDone(took time.Duration) {
	if m == nil {
		return
	}
	m.BroadcastDuration.Observe(took.Seconds())
}

func (m *Metrics) setCodes(n int) {
	if m == nil {
		return
	}
	m.Codes.Set(float64(n))
}

func (m *Metrics) setSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}
