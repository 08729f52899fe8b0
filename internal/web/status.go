package web

import (
	"sync/atomic"
	"time"

	"github.com/MarcinM22/rtk-monitor/internal/gps"
	"github.com/MarcinM22/rtk-monitor/internal/ntrip"
	"github.com/MarcinM22/rtk-monitor/internal/project"
	"github.com/MarcinM22/rtk-monitor/internal/survey"
)

const serviceName = "rtk-monitor"

// Status assembles the status snapshot from the live components.
type Status struct {
	startUnixNano int64
	d             Deps
}

func NewStatus(d Deps) *Status {
	s := &Status{d: d}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	return s
}

// StatusSnapshot flattens the fix at the top level; the UI reads fields
// such as fix_quality and latitude directly.
type StatusSnapshot struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`

	gps.PositionFix
	FixLabel string `json:"fix_label"`
	// FixAgeSec is nil until the receiver has produced a fix.
	FixAgeSec *float64   `json:"fix_age_s,omitempty"`
	Serial    gps.Status `json:"serial"`

	NTRIPConnected    bool        `json:"ntrip_connected"`
	NTRIPBytes        uint64      `json:"ntrip_bytes"`
	NTRIPBytesWritten uint64      `json:"ntrip_bytes_written"`
	NTRIPMountpoint   string      `json:"ntrip_mountpoint,omitempty"`
	NTRIPError        string      `json:"ntrip_error,omitempty"`
	NTRIP             ntrip.Stats `json:"ntrip"`

	Project     *project.Info            `json:"project,omitempty"`
	Measurement survey.MeasurementStatus `json:"measurement"`
	Stakeout    survey.StakeoutResult    `json:"stakeout"`

	System *SystemSnapshot `json:"system,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   serviceName,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
	}
	if s.d.GPS != nil {
		snap.PositionFix = s.d.GPS.Snapshot()
		snap.Serial = s.d.GPS.Status()
	}
	snap.FixLabel = snap.Quality.String()
	if age := snap.PositionFix.Age(nowUTC); age >= 0 {
		sec := age.Seconds()
		snap.FixAgeSec = &sec
	}

	if s.d.NTRIP != nil {
		st := s.d.NTRIP.Stats()
		snap.NTRIP = st
		snap.NTRIPConnected = st.Connected
		snap.NTRIPBytes = st.BytesReceived
		snap.NTRIPBytesWritten = st.BytesForwarded
		snap.NTRIPMountpoint = st.Mountpoint
		snap.NTRIPError = st.Error
	}

	if s.d.Projects != nil {
		if info, ok := s.d.Projects.Current(); ok {
			snap.Project = &info
		}
		snap.System = snapshotSystem(s.d.Projects.BaseDir())
	}
	if s.d.Survey != nil {
		snap.Measurement = s.d.Survey.Status()
	}
	if s.d.Stakeout != nil {
		snap.Stakeout = s.d.Stakeout.Current(snap.PositionFix)
	}
	return snap
}
