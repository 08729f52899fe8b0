package survey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/MarcinM22/rtk-monitor/internal/geodesy"
	"github.com/MarcinM22/rtk-monitor/internal/gps"
	"github.com/MarcinM22/rtk-monitor/internal/project"
)

var (
	ErrMeasurementRunning = errors.New("survey: measurement already running")
	ErrNoProject          = errors.New("survey: select a project first")
	ErrEmptyPointName     = errors.New("survey: point name is required")
)

// FixSource provides position snapshots.
type FixSource interface {
	Snapshot() gps.PositionFix
}

// PointStore persists finished points.
type PointStore interface {
	Current() (project.Info, bool)
	Append(project.Record) (project.Record, error)
}

type Config struct {
	RequiredSamples int
	MinFixQuality   gps.FixQuality
	SampleInterval  time.Duration
}

// MeasurementStatus is the JSON view of the current measurement.
type MeasurementStatus struct {
	Active    bool            `json:"active"`
	Done      bool            `json:"done"`
	State     Status          `json:"state"`
	ID        string          `json:"id,omitempty"`
	PointName string          `json:"point_name,omitempty"`
	Progress  int             `json:"progress"`
	Required  int             `json:"required"`
	Rejected  int             `json:"rejected"`
	Error     string          `json:"error,omitempty"`
	Result    *project.Record `json:"result,omitempty"`
}

// Session owns the current measurement and runs the sampler.
type Session struct {
	cfg     Config
	src     FixSource
	store   PointStore
	conv    geodesy.Transformer
	metrics *Metrics
	now     func() time.Time

	// OnRecord is called after a point is saved. Set it before Run.
	OnRecord func(project.Record)

	mu      sync.Mutex
	current *Measurement
	result  *project.Record
	saveErr string

	wake chan struct{}
}

func NewSession(cfg Config, src FixSource, store PointStore, conv geodesy.Transformer, m *Metrics) *Session {
	if cfg.RequiredSamples <= 0 {
		cfg.RequiredSamples = 10
	}
	if cfg.MinFixQuality <= 0 {
		cfg.MinFixQuality = gps.FixRTKFixed
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	if conv == nil {
		conv = geodesy.NewPL2000Converter()
	}
	return &Session{
		cfg:     cfg,
		src:     src,
		store:   store,
		conv:    conv,
		metrics: m,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// Start begins a measurement of pointName. samples <= 0 uses the configured
// default.
func (s *Session) Start(pointName string, samples int) (MeasurementStatus, error) {
	name := strings.TrimSpace(pointName)
	if samples <= 0 {
		samples = s.cfg.RequiredSamples
	}

	s.mu.Lock()
	if s.current != nil && s.current.Status() == StatusCollecting {
		s.mu.Unlock()
		return MeasurementStatus{}, ErrMeasurementRunning
	}
	if _, ok := s.store.Current(); !ok {
		s.mu.Unlock()
		return MeasurementStatus{}, ErrNoProject
	}
	if name == "" {
		s.mu.Unlock()
		return MeasurementStatus{}, ErrEmptyPointName
	}
	m := NewMeasurement(name, samples, s.cfg.MinFixQuality)
	if err := m.Start(s.now()); err != nil {
		s.mu.Unlock()
		return MeasurementStatus{}, err
	}
	s.current = m
	s.result = nil
	s.saveErr = ""
	st := s.statusLocked()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	log.Infof("measurement started point=%q samples=%d id=%s", name, samples, m.ID)
	return st, nil
}

// Cancel stops the current measurement; it is a no-op when none is running.
func (s *Session) Cancel() MeasurementStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Cancel(s.now()) {
		log.Infof("measurement cancelled point=%q progress=%d", s.current.PointName, s.current.Progress())
	}
	return s.statusLocked()
}

func (s *Session) Status() MeasurementStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() MeasurementStatus {
	m := s.current
	if m == nil {
		return MeasurementStatus{State: StatusIdle}
	}
	st := MeasurementStatus{
		Active:    m.Status() == StatusCollecting,
		Done:      m.Status() == StatusComplete,
		State:     m.Status(),
		ID:        m.ID,
		PointName: m.PointName,
		Progress:  m.Progress(),
		Required:  m.Required,
		Rejected:  m.Rejected(),
		Error:     m.Err(),
	}
	if s.saveErr != "" {
		st.Error = s.saveErr
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	return st
}

// Run samples the fix source every SampleInterval while a measurement is
// collecting. It returns when ctx is done.
func (s *Session) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.SampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-t.C:
		}
		s.tick()
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	m := s.current
	s.mu.Unlock()
	if m == nil || s.src == nil {
		return
	}

	// The fix source has its own lock; never call it with s.mu held.
	fix := s.src.Snapshot()

	s.mu.Lock()
	if s.current != m || m.Status() != StatusCollecting {
		s.mu.Unlock()
		return
	}
	before := m.Rejected()
	done := m.Offer(fix, s.now())
	accepted := m.Rejected() == before
	s.mu.Unlock()

	s.metrics.sample(accepted)
	if done {
		s.finalize(m)
	}
}

// finalize converts the averaged position and saves it.
func (s *Session) finalize(m *Measurement) {
	st, ok := m.Stats()
	if !ok {
		log.Errorf("measurement %s has no samples", m.ID)
		return
	}
	rec := buildRecord(m, st, s.conv)

	saved, err := s.store.Append(rec)
	s.mu.Lock()
	// A new measurement may have started while the point was being written.
	if s.current == m {
		if err != nil {
			s.saveErr = fmt.Sprintf("zapis nieudany: %v", err)
		} else {
			s.result = &saved
		}
	}
	s.mu.Unlock()

	if err != nil {
		log.Errorf("measurement save failed point=%q: %v", m.PointName, err)
		return
	}
	s.metrics.point()
	log.Infof("measurement saved id=%d point=%q X=%.3f Y=%.3f H=%.3f sigma=%.4fm",
		saved.ID, saved.Name, deref(saved.X), deref(saved.Y), deref(saved.HNormal), saved.StdHorizontalM)
	if s.OnRecord != nil {
		s.OnRecord(saved)
	}
}

func buildRecord(m *Measurement, st Stats, conv geodesy.Transformer) project.Record {
	h := st.AltEll
	if h == nil {
		h = st.Alt
	}
	hv := 0.0
	if h != nil {
		hv = *h
	}
	res := conv.Convert(st.Lat, st.Lon, hv)

	rec := project.Record{
		Name:           m.PointName,
		SessionID:      m.ID,
		Lat:            st.Lat,
		Lon:            st.Lon,
		StdLatM:        st.StdLatM,
		StdLonM:        st.StdLonM,
		StdHorizontalM: st.StdHorizontalM,
		StdAltM:        st.StdAlt,
		Samples:        st.Count,
		Rejected:       st.Rejected,
		AvgHDOP:        st.AvgHDOP,
		AvgPDOP:        st.AvgPDOP,
		StartedAt:      st.StartedAt,
		FinishedAt:     st.FinishedAt,
		DurationS:      st.DurationS,
		HeightMethod:   res.Method,
	}
	if res.Valid {
		x, y := res.X, res.Y
		rec.X, rec.Y = &x, &y
	}
	if h != nil {
		hn, he := res.HNormal, hv
		rec.HNormal, rec.HEll = &hn, &he
	}
	return rec
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
