package gps

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func applyLines(t *testing.T, st *nmeaState, payloads ...string) {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, p := range payloads {
		s, err := parseNMEASentence(nmeaLine(p))
		if err != nil {
			t.Fatalf("parse %q: %v", p, err)
		}
		st.apply(now, s)
	}
}

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParseNMEASentence_ChecksumOK(t *testing.T) {
	line := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	s, err := parseNMEASentence(line)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Type != "RMC" || s.Talker != "GP" {
		t.Fatalf("type=%q talker=%q", s.Type, s.Talker)
	}
	if s.Raw != line {
		t.Fatalf("raw=%q want %q", s.Raw, line)
	}
}

func TestParseNMEASentence_ChecksumMismatch(t *testing.T) {
	good := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	bad := good[:len(good)-2] + "00"
	if _, err := parseNMEASentence(bad); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNMEAState_GGAEllipsoidalHeight(t *testing.T) {
	var st nmeaState
	applyLines(t, &st, "GNGGA,123519.00,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,1.0,0042")
	fix := st.snapshot()

	if fix.Quality != FixRTKFixed {
		t.Fatalf("quality=%v", fix.Quality)
	}
	if fix.AltEllM == nil || !approxEqual(*fix.AltEllM, 155.0) {
		t.Fatalf("alt_ell=%v want 155", fix.AltEllM)
	}
	if fix.AltEllApprox {
		t.Fatalf("alt_ell should not be approximate")
	}
	if !fix.HasPosition() || !approxEqual(*fix.LatDeg, 50.22) || !approxEqual(*fix.LonDeg, 19.025) {
		t.Fatalf("lat=%v lon=%v", fix.LatDeg, fix.LonDeg)
	}
	if fix.SatellitesUsed != 12 || fix.HDOP == nil || *fix.HDOP != 0.7 {
		t.Fatalf("sats=%d hdop=%v", fix.SatellitesUsed, fix.HDOP)
	}
	if fix.DiffAgeSec == nil || *fix.DiffAgeSec != 1.0 || fix.DiffStation != "0042" {
		t.Fatalf("diff age=%v station=%q", fix.DiffAgeSec, fix.DiffStation)
	}
	if fix.TimeOfDay != "12:35:19.000" {
		t.Fatalf("time=%q", fix.TimeOfDay)
	}
	if fix.GGA == "" || fix.GGA[:6] != "$GNGGA" {
		t.Fatalf("gga=%q", fix.GGA)
	}
}

func TestNMEAState_GGAWithoutSeparationIsApproximate(t *testing.T) {
	var st nmeaState
	applyLines(t, &st, "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,,M,,")
	fix := st.snapshot()
	if fix.AltEllM == nil || *fix.AltEllM != 545.4 {
		t.Fatalf("alt_ell=%v want 545.4", fix.AltEllM)
	}
	if !fix.AltEllApprox {
		t.Fatalf("expected approximate ellipsoidal height")
	}
	if fix.GeoidSepM != nil {
		t.Fatalf("geo_sep=%v want nil", *fix.GeoidSepM)
	}
}

func TestNMEAState_BadFieldKeepsPreviousValue(t *testing.T) {
	var st nmeaState
	applyLines(t, &st,
		"GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,,",
		"GNGGA,123520,5013.2000,N,01901.5000,E,4,1x,abc,121.0,M,35.0,M,,",
	)
	fix := st.snapshot()
	if fix.HDOP == nil || *fix.HDOP != 0.7 {
		t.Fatalf("hdop=%v want 0.7 kept", fix.HDOP)
	}
	if fix.SatellitesUsed != 12 {
		t.Fatalf("sats=%d want 12 kept", fix.SatellitesUsed)
	}
	// Other fields of the same sentence still update.
	if fix.AltM == nil || *fix.AltM != 121.0 {
		t.Fatalf("alt=%v want 121", fix.AltM)
	}
}

func TestNMEAState_EmptyPositionKeepsLastPosition(t *testing.T) {
	var st nmeaState
	applyLines(t, &st,
		"GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,,",
		"GNGGA,123520,,,,,0,00,,,M,,M,,",
	)
	fix := st.snapshot()
	if !fix.HasPosition() {
		t.Fatalf("expected last position kept")
	}
	if fix.Quality != FixNone {
		t.Fatalf("quality=%v want no fix", fix.Quality)
	}
}

func TestNMEAState_RMCSpeedAndDate(t *testing.T) {
	var st nmeaState
	applyLines(t, &st, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W")
	fix := st.snapshot()
	if fix.SpeedKmh == nil || !approxEqual(*fix.SpeedKmh, 22.4*1.852) {
		t.Fatalf("speed_kmh=%v", fix.SpeedKmh)
	}
	if fix.CourseDeg == nil || *fix.CourseDeg != 84.4 {
		t.Fatalf("course=%v", fix.CourseDeg)
	}
	if fix.Date != "2024-03-23" {
		t.Fatalf("date=%q", fix.Date)
	}
	if !fix.HasPosition() {
		t.Fatalf("expected position")
	}
}

func TestNMEAState_TalkerIndependent(t *testing.T) {
	for _, talker := range []string{"GP", "GN", "GB", "GA", "GL"} {
		var st nmeaState
		applyLines(t, &st, talker+"GSV,3,1,11,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45")
		if got := st.snapshot().SatellitesVisible; got != 11 {
			t.Fatalf("talker=%s satellites_visible=%d", talker, got)
		}
	}
}

func TestNMEAState_GSAAndVTG(t *testing.T) {
	var st nmeaState
	applyLines(t, &st,
		"GNGSA,A,3,01,02,03,04,05,06,,,,,,,1.8,0.9,1.5,1",
		"GNVTG,084.4,T,,M,022.4,N,041.5,K,D",
	)
	fix := st.snapshot()
	if fix.FixType == nil || *fix.FixType != 3 {
		t.Fatalf("fix_type=%v", fix.FixType)
	}
	if *fix.PDOP != 1.8 || *fix.HDOP != 0.9 || *fix.VDOP != 1.5 {
		t.Fatalf("dops=%v/%v/%v", *fix.PDOP, *fix.HDOP, *fix.VDOP)
	}
	if fix.SpeedKmh == nil || *fix.SpeedKmh != 41.5 {
		t.Fatalf("speed_kmh=%v", fix.SpeedKmh)
	}
}

func TestNMEAState_EmptyDiffAgeClears(t *testing.T) {
	var st nmeaState
	applyLines(t, &st,
		"GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,1.0,0042",
		"GNGGA,123520,5013.2000,N,01901.5000,E,1,12,0.7,120.0,M,35.0,M,,",
	)
	fix := st.snapshot()
	if fix.DiffAgeSec != nil || fix.DiffStation != "" {
		t.Fatalf("diff age=%v station=%q want cleared", fix.DiffAgeSec, fix.DiffStation)
	}
}

func TestNMEAState_EmptyGeoidSeparationClears(t *testing.T) {
	var st nmeaState
	applyLines(t, &st,
		"GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,1.0,0042",
		"GNGGA,123520,5013.2000,N,01901.5000,E,4,12,0.7,121.0,M,,M,1.0,0042",
	)
	fix := st.snapshot()
	if fix.GeoidSepM != nil {
		t.Fatalf("geo_sep=%v want cleared", *fix.GeoidSepM)
	}
	if fix.AltEllM == nil || *fix.AltEllM != 121 || !fix.AltEllApprox {
		t.Fatalf("alt_ell=%v approx=%v want 121 approx", fix.AltEllM, fix.AltEllApprox)
	}

	// Unparsable text keeps the last good separation.
	applyLines(t, &st, "GNGGA,123521,5013.2000,N,01901.5000,E,4,12,0.7,121.0,M,35.0,M,1.0,0042",
		"GNGGA,123522,5013.2000,N,01901.5000,E,4,12,0.7,121.0,M,x,M,1.0,0042")
	if fix := st.snapshot(); fix.GeoidSepM == nil || *fix.GeoidSepM != 35 {
		t.Fatalf("geo_sep=%v want 35", fix.GeoidSepM)
	}
}

func TestNMEAState_UnknownTypeIgnored(t *testing.T) {
	var st nmeaState
	s, err := parseNMEASentence(nmeaLine("PQTMVER,MODULE_LC29HDA,2023/01/01"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st.apply(time.Now(), s) {
		t.Fatalf("unexpected update")
	}
}

func TestFixQualityString(t *testing.T) {
	if FixRTKFixed.String() != "RTK Fixed" || FixRTKFloat.String() != "RTK Float" {
		t.Fatalf("labels=%q %q", FixRTKFixed, FixRTKFloat)
	}
	if FixQuality(9).String() != "Type 9" {
		t.Fatalf("unknown=%q", FixQuality(9))
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	var st nmeaState
	applyLines(t, &st, "GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,,")
	a := st.snapshot()
	*a.HDOP = 99
	if b := st.snapshot(); *b.HDOP != 0.7 {
		t.Fatalf("snapshot shares memory with state")
	}
}
