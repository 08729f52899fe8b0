package survey

import (
	"math"
	"time"
)

// metresPerDegree is the flat-earth scale used for the sigma estimates.
const metresPerDegree = 111000.0

// Stats summarises a set of samples. Optional fields are nil when no sample
// carried the value.
type Stats struct {
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	Alt    *float64 `json:"alt"`
	AltEll *float64 `json:"alt_ellipsoidal"`

	StdLat float64  `json:"std_lat"`
	StdLon float64  `json:"std_lon"`
	StdAlt *float64 `json:"std_alt"`

	StdLatM        float64 `json:"std_lat_m"`
	StdLonM        float64 `json:"std_lon_m"`
	StdHorizontalM float64 `json:"std_horizontal_m"`

	Count    int      `json:"samples_count"`
	Rejected int      `json:"rejected_count"`
	AvgHDOP  *float64 `json:"avg_hdop"`
	AvgPDOP  *float64 `json:"avg_pdop"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"-"`
	DurationS  float64       `json:"duration_s"`
}

func computeStats(samples []Sample, rejected int, started, finished time.Time) (Stats, bool) {
	n := len(samples)
	if n == 0 {
		return Stats{}, false
	}
	lats := make([]float64, 0, n)
	lons := make([]float64, 0, n)
	var alts, altsEll, hdops, pdops []float64
	for _, s := range samples {
		lats = append(lats, s.Lat)
		lons = append(lons, s.Lon)
		alts = appendOpt(alts, s.Alt)
		altsEll = appendOpt(altsEll, s.AltEll)
		hdops = appendOpt(hdops, s.HDOP)
		pdops = appendOpt(pdops, s.PDOP)
	}

	st := Stats{
		Lat:        mean(lats),
		Lon:        mean(lons),
		Alt:        meanOpt(alts),
		AltEll:     meanOpt(altsEll),
		StdLat:     stddev(lats),
		StdLon:     stddev(lons),
		Count:      n,
		Rejected:   rejected,
		AvgHDOP:    meanOpt(hdops),
		AvgPDOP:    meanOpt(pdops),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if len(alts) > 0 {
		v := stddev(alts)
		st.StdAlt = &v
	}
	st.StdLatM = st.StdLat * metresPerDegree
	st.StdLonM = st.StdLon * metresPerDegree * math.Cos(st.Lat*math.Pi/180)
	st.StdHorizontalM = math.Hypot(st.StdLatM, st.StdLonM)
	if !finished.IsZero() && !started.IsZero() {
		st.Duration = finished.Sub(started)
		st.DurationS = st.Duration.Seconds()
	}
	return st, true
}

func appendOpt(dst []float64, v *float64) []float64 {
	if v == nil {
		return dst
	}
	return append(dst, *v)
}

func mean(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func meanOpt(v []float64) *float64 {
	if len(v) == 0 {
		return nil
	}
	m := mean(v)
	return &m
}

// stddev is the sample standard deviation (n-1); 0 for fewer than two values.
func stddev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := mean(v)
	ss := 0.0
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(v)-1))
}
