package survey

import (
	"errors"
	"math"
	"strings"
	"sync"

	geo "github.com/kellydunn/golang-geo"
	log "github.com/sirupsen/logrus"

	"github.com/MarcinM22/rtk-monitor/internal/geodesy"
	"github.com/MarcinM22/rtk-monitor/internal/gps"
)

// Stakeout methods.
const (
	MethodPlane      = "plane"
	MethodGeographic = "geographic"
)

var ErrBadTarget = errors.New("survey: stakeout target needs finite X and Y")

// Target is a point to set out. X is northing and Y easting in the plane
// system; H is a normal height. Lat and Lon are optional.
type Target struct {
	Name string   `json:"name"`
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
	H    *float64 `json:"h,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// Delta is the offset from the current position to the target.
type Delta struct {
	DX         float64  `json:"dx"`
	DY         float64  `json:"dy"`
	Distance   float64  `json:"distance"`
	BearingDeg float64  `json:"bearing"`
	DH         *float64 `json:"dh,omitempty"`
}

// Compute returns target minus current. The bearing is clockwise from grid
// north (X axis) in [0, 360). DH is set only when both heights are known.
func Compute(tx, ty float64, th *float64, cx, cy float64, ch *float64) Delta {
	d := Delta{DX: tx - cx, DY: ty - cy}
	d.Distance = math.Hypot(d.DX, d.DY)
	d.BearingDeg = normalizeBearing(math.Atan2(d.DY, d.DX) * 180 / math.Pi)
	if th != nil && ch != nil {
		dh := *th - *ch
		d.DH = &dh
	}
	return d
}

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

// StakeoutResult is the JSON view served with the status.
type StakeoutResult struct {
	Active   bool    `json:"active"`
	Valid    bool    `json:"valid"`
	Method   string  `json:"method,omitempty"`
	Target   *Target `json:"target,omitempty"`
	CurrentX float64 `json:"current_x,omitempty"`
	CurrentY float64 `json:"current_y,omitempty"`
	Delta
}

// Stakeout holds the active target and converts live fixes against it.
type Stakeout struct {
	conv geodesy.Transformer

	mu     sync.Mutex
	target *Target
}

func NewStakeout(conv geodesy.Transformer) *Stakeout {
	if conv == nil {
		conv = geodesy.NewPL2000Converter()
	}
	return &Stakeout{conv: conv}
}

func (s *Stakeout) Set(t Target) error {
	if math.IsNaN(t.X) || math.IsInf(t.X, 0) || math.IsNaN(t.Y) || math.IsInf(t.Y, 0) {
		return ErrBadTarget
	}
	if strings.TrimSpace(t.Name) == "" {
		t.Name = "?"
	}
	s.mu.Lock()
	s.target = &t
	s.mu.Unlock()
	log.Infof("stakeout target name=%q x=%.3f y=%.3f", t.Name, t.X, t.Y)
	return nil
}

func (s *Stakeout) Clear() {
	s.mu.Lock()
	s.target = nil
	s.mu.Unlock()
}

func (s *Stakeout) Target() (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return Target{}, false
	}
	return *s.target, true
}

// Current computes the offset from fix to the target.
func (s *Stakeout) Current(fix gps.PositionFix) StakeoutResult {
	t, ok := s.Target()
	if !ok {
		return StakeoutResult{}
	}
	out := StakeoutResult{Active: true, Target: &t}
	if !fix.HasPosition() {
		return out
	}
	lat, lon := *fix.LatDeg, *fix.LonDeg

	var hEll *float64
	switch {
	case fix.AltEllM != nil:
		hEll = fix.AltEllM
	case fix.AltM != nil:
		hEll = fix.AltM
	}
	hv := 0.0
	if hEll != nil {
		hv = *hEll
	}
	res := s.conv.Convert(lat, lon, hv)
	var hNormal *float64
	if hEll != nil {
		h := res.HNormal
		hNormal = &h
	}

	if res.Valid {
		out.Valid = true
		out.Method = MethodPlane
		out.CurrentX, out.CurrentY = res.X, res.Y
		out.Delta = Compute(t.X, t.Y, t.H, res.X, res.Y, hNormal)
		return out
	}
	if t.Lat != nil && t.Lon != nil {
		out.Valid = true
		out.Method = MethodGeographic
		out.Delta = geographicDelta(lat, lon, *t.Lat, *t.Lon)
		if t.H != nil && hNormal != nil {
			dh := *t.H - *hNormal
			out.DH = &dh
		}
	}
	return out
}

// geographicDelta uses great-circle distance and initial bearing, then
// splits the distance into north and east components.
func geographicDelta(lat, lon, tLat, tLon float64) Delta {
	from := geo.NewPoint(lat, lon)
	to := geo.NewPoint(tLat, tLon)
	dist := from.GreatCircleDistance(to) * 1000
	if dist == 0 {
		return Delta{}
	}
	b := normalizeBearing(from.BearingTo(to))
	rad := b * math.Pi / 180
	return Delta{
		DX:         dist * math.Cos(rad),
		DY:         dist * math.Sin(rad),
		Distance:   dist,
		BearingDeg: b,
	}
}
