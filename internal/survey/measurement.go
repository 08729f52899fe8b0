package survey

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MarcinM22/rtk-monitor/internal/gps"
)

// CancelledMessage is the error shown for a cancelled measurement.
const CancelledMessage = "Anulowany"

// Status is the lifecycle of one measurement.
type Status int

const (
	StatusIdle Status = iota
	StatusCollecting
	StatusComplete
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCollecting:
		return "collecting"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether the measurement can no longer change.
func (s Status) Terminal() bool { return s == StatusComplete || s == StatusCancelled }

var statusTransitions = map[Status][]Status{
	StatusIdle:       {StatusCollecting},
	StatusCollecting: {StatusComplete, StatusCancelled},
}

func canMove(from, to Status) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Sample is a copy of the fix fields used for averaging.
type Sample struct {
	Lat        float64
	Lon        float64
	Alt        *float64
	AltEll     *float64
	Quality    gps.FixQuality
	HDOP       *float64
	PDOP       *float64
	VDOP       *float64
	Satellites int
	DiffAge    *float64
	At         time.Time
}

func sampleFromFix(f gps.PositionFix, now time.Time) Sample {
	cp := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	return Sample{
		Lat:        *f.LatDeg,
		Lon:        *f.LonDeg,
		Alt:        cp(f.AltM),
		AltEll:     cp(f.AltEllM),
		Quality:    f.Quality,
		HDOP:       cp(f.HDOP),
		PDOP:       cp(f.PDOP),
		VDOP:       cp(f.VDOP),
		Satellites: f.SatellitesUsed,
		DiffAge:    cp(f.DiffAgeSec),
		At:         now,
	}
}

// Measurement collects samples for one point. It is not safe for concurrent
// use; Session serializes access.
type Measurement struct {
	ID         string
	PointName  string
	Required   int
	MinQuality gps.FixQuality

	status     Status
	samples    []Sample
	rejected   int
	startedAt  time.Time
	finishedAt time.Time
	errMsg     string
}

func NewMeasurement(pointName string, required int, minQuality gps.FixQuality) *Measurement {
	if required <= 0 {
		required = 1
	}
	return &Measurement{
		ID:         uuid.NewString(),
		PointName:  pointName,
		Required:   required,
		MinQuality: minQuality,
		samples:    make([]Sample, 0, required),
	}
}

func (m *Measurement) move(to Status) bool {
	if !canMove(m.status, to) {
		return false
	}
	m.status = to
	return true
}

// Start begins collecting. It fails unless the measurement is idle.
func (m *Measurement) Start(now time.Time) error {
	if !m.move(StatusCollecting) {
		return fmt.Errorf("survey: cannot start measurement in state %s", m.status)
	}
	m.startedAt = now
	return nil
}

// Offer considers one fix. A fix below the minimum quality or without a
// position counts as rejected. Offer reports whether this sample completed
// the measurement; offers to a measurement that is not collecting are ignored.
func (m *Measurement) Offer(f gps.PositionFix, now time.Time) bool {
	if m.status != StatusCollecting {
		return false
	}
	if f.Quality < m.MinQuality || !f.HasPosition() {
		m.rejected++
		return false
	}
	m.samples = append(m.samples, sampleFromFix(f, now))
	if len(m.samples) < m.Required {
		return false
	}
	m.move(StatusComplete)
	m.finishedAt = now
	return true
}

// Cancel stops a collecting measurement and reports whether it did.
func (m *Measurement) Cancel(now time.Time) bool {
	if !m.move(StatusCancelled) {
		return false
	}
	m.finishedAt = now
	m.errMsg = CancelledMessage
	return true
}

func (m *Measurement) Status() Status { return m.status }
func (m *Measurement) Progress() int  { return len(m.samples) }
func (m *Measurement) Rejected() int  { return m.rejected }
func (m *Measurement) Err() string    { return m.errMsg }

// Samples returns a copy of the accepted samples.
func (m *Measurement) Samples() []Sample {
	return append([]Sample(nil), m.samples...)
}

// Stats averages the accepted samples. ok is false without samples.
func (m *Measurement) Stats() (Stats, bool) {
	return computeStats(m.samples, m.rejected, m.startedAt, m.finishedAt)
}
