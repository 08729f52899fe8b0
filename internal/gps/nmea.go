package gps

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

const knotsToKmh = 1.852

type nmeaSentence struct {
	Talker string
	Type   string
	// Fields is the comma-split NMEA payload (excluding $ and checksum).
	Fields []string
	Raw    string
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	if !strings.EqualFold(nmea.Checksum(payload), ck[:2]) {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	addr := parts[0]
	if len(addr) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	// The type is the last three characters whatever the talker (GP, GN, GB...).
	t := strings.ToUpper(addr[len(addr)-3:])
	return nmeaSentence{
		Talker: addr[:len(addr)-3],
		Type:   t,
		Fields: parts,
		Raw:    line[:star+3],
	}, nil
}

// nmeaState accumulates decoded fields. Every field has an ok flag so a
// field that fails to parse leaves the previous value in place.
type nmeaState struct {
	fixQuality   int
	fixQualityOK bool
	fixType      int
	fixTypeOK    bool

	latDeg, lonDeg float64
	posOK          bool

	altM      float64
	altOK     bool
	geoidSepM float64
	geoidOK   bool
	altEllM   float64
	altEllOK  bool
	altApprox bool

	satsUsed    int
	satsVisible int

	hdop, pdop, vdop       float64
	hdopOK, pdopOK, vdopOK bool

	speedKnots   float64
	speedKnotsOK bool
	speedKmh     float64
	speedKmhOK   bool
	courseDeg    float64
	courseOK     bool

	timeOfDay string
	date      string

	diffAge     float64
	diffAgeOK   bool
	diffStation string

	gga string

	lastUpdate time.Time
}

func (s *nmeaState) apply(nowUTC time.Time, sent nmeaSentence) bool {
	var ok bool
	switch sent.Type {
	case "GGA":
		ok = s.applyGGA(sent.Fields)
		if ok {
			s.gga = sent.Raw
		}
	case "RMC":
		ok = s.applyRMC(sent.Fields)
	case "GSA":
		ok = s.applyGSA(sent.Fields)
	case "GSV":
		ok = s.applyGSV(sent.Fields)
	case "VTG":
		ok = s.applyVTG(sent.Fields)
	default:
		return false
	}
	if ok {
		s.lastUpdate = nowUTC
	}
	return ok
}

func (s *nmeaState) snapshot() PositionFix {
	out := PositionFix{
		Quality:           FixQuality(s.fixQuality),
		SatellitesUsed:    s.satsUsed,
		SatellitesVisible: s.satsVisible,
		TimeOfDay:         s.timeOfDay,
		Date:              s.date,
		DiffStation:       s.diffStation,
		GGA:               s.gga,
		AltEllApprox:      s.altEllOK && s.altApprox,
	}
	if s.fixTypeOK {
		out.FixType = ptr(s.fixType)
	}
	if s.posOK {
		out.LatDeg = ptr(s.latDeg)
		out.LonDeg = ptr(s.lonDeg)
	}
	if s.altOK {
		out.AltM = ptr(s.altM)
	}
	if s.geoidOK {
		out.GeoidSepM = ptr(s.geoidSepM)
	}
	if s.altEllOK {
		out.AltEllM = ptr(s.altEllM)
	}
	if s.hdopOK {
		out.HDOP = ptr(s.hdop)
	}
	if s.pdopOK {
		out.PDOP = ptr(s.pdop)
	}
	if s.vdopOK {
		out.VDOP = ptr(s.vdop)
	}
	if s.speedKnotsOK {
		out.SpeedKnots = ptr(s.speedKnots)
	}
	if s.speedKmhOK {
		out.SpeedKmh = ptr(s.speedKmh)
	}
	if s.courseOK {
		out.CourseDeg = ptr(s.courseDeg)
	}
	if s.diffAgeOK {
		out.DiffAgeSec = ptr(s.diffAge)
	}
	if !s.lastUpdate.IsZero() {
		out.LastUpdateUTC = s.lastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: time (hhmmss.ss)
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
//	6: fix quality
//	7: satellites used
//	8: HDOP
//	9: altitude above mean sea level (meters)
//	10: units (M)
//	11: geoid separation (meters)
//	12: units (M)
//	13: age of differential data (seconds)
//	14: differential reference station id
func (s *nmeaState) applyGGA(f []string) bool {
	if len(f) < 10 {
		return false
	}
	if t, ok := parseTimeOfDay(f[1]); ok {
		s.timeOfDay = t
	}
	if lat, lon, ok := parseLatLonPair(f[2], f[3], f[4], f[5]); ok {
		s.latDeg, s.lonDeg, s.posOK = lat, lon, true
	}
	if q, ok := parseInt(f[6]); ok {
		s.fixQuality, s.fixQualityOK = q, true
	}
	if n, ok := parseInt(f[7]); ok {
		s.satsUsed = n
	}
	if v, ok := parseFloat(f[8]); ok {
		s.hdop, s.hdopOK = v, true
	}

	sep, sepOK := parseFloat(field(f, 11))
	if sepOK {
		s.geoidSepM, s.geoidOK = sep, true
	} else if strings.TrimSpace(field(f, 11)) == "" {
		s.geoidOK = false
	}
	if alt, ok := parseFloat(f[9]); ok {
		s.altM, s.altOK = alt, true
		if sepOK {
			s.altEllM = alt + sep
			s.altApprox = false
		} else {
			s.altEllM = alt
			s.altApprox = true
		}
		s.altEllOK = true
	}

	// An empty age/station means the receiver is not applying corrections,
	// so it clears the previous value. Unparsable text is ignored.
	if age := strings.TrimSpace(field(f, 13)); age == "" {
		s.diffAgeOK = false
	} else if v, ok := parseFloat(age); ok {
		s.diffAge, s.diffAgeOK = v, true
	}
	s.diffStation = strings.TrimSpace(field(f, 14))
	return true
}

// RMC: Recommended Minimum Specific GNSS Data
// Fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
func (s *nmeaState) applyRMC(f []string) bool {
	if len(f) < 10 {
		return false
	}
	if t, ok := parseTimeOfDay(f[1]); ok {
		s.timeOfDay = t
	}
	if lat, lon, ok := parseLatLonPair(f[3], f[4], f[5], f[6]); ok {
		s.latDeg, s.lonDeg, s.posOK = lat, lon, true
	}
	if kt, ok := parseFloat(f[7]); ok {
		s.speedKnots, s.speedKnotsOK = kt, true
		s.speedKmh, s.speedKmhOK = kt*knotsToKmh, true
	}
	if c, ok := parseFloat(f[8]); ok {
		s.courseDeg, s.courseOK = c, true
	}
	if d, ok := parseDate(f[9]); ok {
		s.date = d
	}
	return true
}

// GSA: DOP and active satellites
//
//	1: mode (M/A)
//	2: fix type (1=none, 2=2D, 3=3D)
//	3..14: satellite ids
//	15: PDOP
//	16: HDOP
//	17: VDOP
func (s *nmeaState) applyGSA(f []string) bool {
	if len(f) < 3 {
		return false
	}
	if v, ok := parseInt(f[2]); ok {
		s.fixType, s.fixTypeOK = v, true
	}
	if v, ok := parseFloat(field(f, 15)); ok {
		s.pdop, s.pdopOK = v, true
	}
	if v, ok := parseFloat(field(f, 16)); ok {
		s.hdop, s.hdopOK = v, true
	}
	if v, ok := parseFloat(field(f, 17)); ok {
		s.vdop, s.vdopOK = v, true
	}
	return true
}

// GSV: 3 = satellites in view.
func (s *nmeaState) applyGSV(f []string) bool {
	if n, ok := parseInt(field(f, 3)); ok {
		s.satsVisible = n
		return true
	}
	return false
}

// VTG: 7 = speed over ground in km/h.
func (s *nmeaState) applyVTG(f []string) bool {
	if v, ok := parseFloat(field(f, 7)); ok {
		s.speedKmh, s.speedKmhOK = v, true
		return true
	}
	return false
}

func field(f []string, i int) string {
	if i < len(f) {
		return f[i]
	}
	return ""
}

func ptr[T any](v T) *T { return &v }

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTimeOfDay(s string) (string, bool) {
	t, err := nmea.ParseTime(strings.TrimSpace(s))
	if err != nil || !t.Valid {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Millisecond), true
}

func parseDate(s string) (string, bool) {
	d, err := nmea.ParseDate(strings.TrimSpace(s))
	if err != nil || !d.Valid {
		return "", false
	}
	return fmt.Sprintf("20%02d-%02d-%02d", d.YY, d.MM, d.DD), true
}

func parseLatLonPair(lat, ns, lon, ew string) (float64, float64, bool) {
	la, ok := parseNMEALatLon(lat, ns)
	if !ok {
		return 0, 0, false
	}
	lo, ok := parseNMEALatLon(lon, ew)
	if !ok {
		return 0, 0, false
	}
	return la, lo, true
}

// parseNMEALatLon parses NMEA lat/lon in ddmm.mmmm or dddmm.mmmm plus hemisphere.
func parseNMEALatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	// Minutes are the last two digits of the integer part plus the fraction.
	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil || mins >= 60 {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
