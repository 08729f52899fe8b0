package ntrip

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	bytesReceived  prometheus.Counter
	bytesForwarded prometheus.Counter
	reconnects     prometheus.Counter
	rawFlushes     prometheus.Counter
	states         *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_ntrip_received_bytes_total",
			Help: "Bytes received from the caster, before de-chunking.",
		}),
		bytesForwarded: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_ntrip_forwarded_bytes_total",
			Help: "Correction bytes written to the receiver.",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_ntrip_reconnects_total",
			Help: "Reconnect cycles after a failed or dropped session.",
		}),
		rawFlushes: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_ntrip_raw_flushes_total",
			Help: "Malformed chunk framing forwarded as raw bytes.",
		}),
		states: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtk_ntrip_state",
			Help: "1 for the current client state, 0 otherwise.",
		}, []string{"state"}),
	}
}

func (m *Metrics) received(n int) {
	if m != nil && n > 0 {
		m.bytesReceived.Add(float64(n))
	}
}

func (m *Metrics) forwarded(n int) {
	if m != nil && n > 0 {
		m.bytesForwarded.Add(float64(n))
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) rawFlush(n int) {
	if m != nil && n > 0 {
		m.rawFlushes.Add(float64(n))
	}
}

func (m *Metrics) state(s State) {
	if m == nil {
		return
	}
	for st := StateDisconnected; st <= StateFailed; st++ {
		v := 0.0
		if st == s {
			v = 1
		}
		m.states.WithLabelValues(st.String()).Set(v)
	}
}
