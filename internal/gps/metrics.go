package gps

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	sentences    *prometheus.CounterVec
	rejected     prometheus.Counter
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
	fixQuality   prometheus.Gauge
	satellites   prometheus.Gauge
}

// NewMetrics registers the receiver metrics on reg. A nil reg creates
// unregistered collectors, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sentences: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtk_gps_sentences_total",
			Help: "Valid NMEA sentences decoded, by sentence type.",
		}, []string{"type"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_gps_rejected_frames_total",
			Help: "Candidate sentences dropped for bad checksum or binary content.",
		}),
		bytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_gps_serial_read_bytes_total",
			Help: "Bytes read from the receiver.",
		}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_gps_serial_written_bytes_total",
			Help: "Bytes written to the receiver (commands and corrections).",
		}),
		fixQuality: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtk_gps_fix_quality",
			Help: "Last GGA fix quality indicator.",
		}),
		satellites: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtk_gps_satellites_used",
			Help: "Satellites used in the last fix.",
		}),
	}
}

func (m *Metrics) sentence(typ string) {
	if m != nil {
		m.sentences.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) rejectedFrames(n uint64) {
	if m != nil && n > 0 {
		m.rejected.Add(float64(n))
	}
}

func (m *Metrics) read(n int) {
	if m != nil && n > 0 {
		m.bytesRead.Add(float64(n))
	}
}

func (m *Metrics) written(n int) {
	if m != nil && n > 0 {
		m.bytesWritten.Add(float64(n))
	}
}

func (m *Metrics) fix(f PositionFix) {
	if m == nil {
		return
	}
	m.fixQuality.Set(float64(f.Quality))
	m.satellites.Set(float64(f.SatellitesUsed))
}
