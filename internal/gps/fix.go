package gps

import (
	"fmt"
	"time"
)

// FixQuality is the GGA fix quality indicator.
type FixQuality int

const (
	FixNone FixQuality = iota
	FixGPS
	FixDGPS
	FixPPS
	FixRTKFixed
	FixRTKFloat
	FixEstimated
)

var fixLabels = map[FixQuality]string{
	FixNone:      "No Fix",
	FixGPS:       "GPS Fix",
	FixDGPS:      "DGPS Fix",
	FixPPS:       "PPS Fix",
	FixRTKFixed:  "RTK Fixed",
	FixRTKFloat:  "RTK Float",
	FixEstimated: "Estimated",
}

func (q FixQuality) String() string {
	if s, ok := fixLabels[q]; ok {
		return s
	}
	return fmt.Sprintf("Type %d", int(q))
}

// PositionFix is a point-in-time view of everything decoded from the receiver.
// Optional values are nil until the receiver has reported them at least once.
type PositionFix struct {
	Quality FixQuality `json:"fix_quality"`
	FixType *int       `json:"fix_type,omitempty"`

	LatDeg *float64 `json:"latitude,omitempty"`
	LonDeg *float64 `json:"longitude,omitempty"`

	AltM      *float64 `json:"altitude,omitempty"`
	GeoidSepM *float64 `json:"geo_sep,omitempty"`
	AltEllM   *float64 `json:"altitude_ellipsoidal,omitempty"`
	// AltEllApprox is set when the last GGA had no geoid separation and
	// AltEllM is a copy of AltM.
	AltEllApprox bool `json:"altitude_ellipsoidal_approx,omitempty"`

	SatellitesUsed    int `json:"satellites_used"`
	SatellitesVisible int `json:"satellites_visible"`

	HDOP *float64 `json:"hdop,omitempty"`
	PDOP *float64 `json:"pdop,omitempty"`
	VDOP *float64 `json:"vdop,omitempty"`

	SpeedKnots *float64 `json:"speed_knots,omitempty"`
	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	CourseDeg  *float64 `json:"course,omitempty"`

	TimeOfDay string `json:"timestamp,omitempty"`
	Date      string `json:"date,omitempty"`

	DiffAgeSec  *float64 `json:"diff_age,omitempty"`
	DiffStation string   `json:"diff_station,omitempty"`

	// GGA is the last position sentence verbatim, used for caster keepalive.
	GGA string `json:"gga,omitempty"`

	LastUpdateUTC string `json:"last_update_utc,omitempty"`
}

// HasPosition reports whether both latitude and longitude are known.
func (f PositionFix) HasPosition() bool {
	return f.LatDeg != nil && f.LonDeg != nil
}

// Age returns how long ago the fix was last updated, or -1 when it never was.
func (f PositionFix) Age(nowUTC time.Time) time.Duration {
	if f.LastUpdateUTC == "" {
		return -1
	}
	t, err := time.Parse(time.RFC3339Nano, f.LastUpdateUTC)
	if err != nil {
		return -1
	}
	return nowUTC.Sub(t)
}
