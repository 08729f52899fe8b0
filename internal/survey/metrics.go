package survey

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	samples *prometheus.CounterVec
	points  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtk_survey_samples_total",
			Help: "Fixes offered to a running measurement, by outcome.",
		}, []string{"outcome"}),
		points: f.NewCounter(prometheus.CounterOpts{
			Name: "rtk_survey_points_saved_total",
			Help: "Measurements averaged and written to a project.",
		}),
	}
}

func (m *Metrics) sample(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.samples.WithLabelValues("accepted").Inc()
	} else {
		m.samples.WithLabelValues("rejected").Inc()
	}
}

func (m *Metrics) point() {
	if m != nil {
		m.points.Inc()
	}
}
