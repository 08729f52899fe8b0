package geodesy

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// Result is one converted point. X is northing and Y easting, per the Polish
// convention. Valid is false when no plane coordinates could be computed; the
// height fields are still filled.
type Result struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	HNormal      float64 `json:"h_normal"`
	HEllipsoidal float64 `json:"h_ellipsoidal"`
	Valid        bool    `json:"valid"`
	Method       string  `json:"height_method"`
}

// Transformer converts WGS84 latitude, longitude and ellipsoidal height to
// plane coordinates and normal height.
type Transformer interface {
	Convert(latDeg, lonDeg, hEll float64) Result
}

// Converter is the default Transformer.
type Converter struct {
	proj   *Projection
	height HeightModel
}

// NewConverter builds a converter. proj may be nil (heights only); height may
// be nil, in which case ApproxGeoid is used.
func NewConverter(proj *Projection, height HeightModel) *Converter {
	return &Converter{proj: proj, height: height}
}

// NewPL2000Converter is PL-2000 zone 6 with the approximate geoid.
func NewPL2000Converter() *Converter {
	p, _ := PL2000(6)
	return NewConverter(&p, nil)
}

func (c *Converter) Convert(latDeg, lonDeg, hEll float64) Result {
	out := Result{HEllipsoidal: hEll}
	if math.IsNaN(latDeg) || math.IsNaN(lonDeg) {
		out.Method = MethodApprox
		return out
	}
	if c.proj != nil {
		out.X, out.Y = c.proj.Forward(latDeg, lonDeg)
		out.Valid = !math.IsNaN(out.X) && !math.IsNaN(out.Y) && !math.IsInf(out.X, 0) && !math.IsInf(out.Y, 0)
		if !out.Valid {
			out.X, out.Y = 0, 0
		}
	}

	n, method := c.undulation(latDeg, lonDeg)
	out.HNormal = hEll - n
	out.Method = method
	return out
}

// Method names the height model that will be used for typical points.
func (c *Converter) Method() string {
	if c.height == nil {
		return MethodApprox
	}
	return c.height.Method()
}

// Projection returns the plane projection, or nil.
func (c *Converter) Projection() *Projection { return c.proj }

func (c *Converter) undulation(latDeg, lonDeg float64) (float64, string) {
	if c.height != nil {
		n, err := c.height.Undulation(latDeg, lonDeg)
		if err == nil {
			return n, c.height.Method()
		}
		log.Debugf("geodesy height model %s failed lat=%.6f lon=%.6f: %v", c.height.Method(), latDeg, lonDeg, err)
	}
	n, _ := ApproxGeoid{}.Undulation(latDeg, lonDeg)
	return n, MethodApprox
}
