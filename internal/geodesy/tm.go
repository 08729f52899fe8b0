package geodesy

import (
	"fmt"
	"math"
)

// GRS80 ellipsoid.
const (
	grs80A = 6378137.0
	grs80F = 1 / 298.257222101
)

// Projection is a Transverse Mercator projection on GRS80 evaluated with the
// Krüger series to fourth order in n, which is millimetre-accurate within a
// few degrees of the central meridian.
type Projection struct {
	Name          string
	Lon0Deg       float64
	K0            float64
	FalseEasting  float64
	FalseNorthing float64
}

// PL2000 returns the PL-2000 projection for zone 5..8 (central meridians
// 15, 18, 21 and 24 degrees east).
func PL2000(zone int) (Projection, error) {
	if zone < 5 || zone > 8 {
		return Projection{}, fmt.Errorf("geodesy: PL-2000 zone %d out of range 5..8", zone)
	}
	return Projection{
		Name:         fmt.Sprintf("PL-2000/%d", zone),
		Lon0Deg:      float64(3 * zone),
		K0:           0.999923,
		FalseEasting: float64(zone)*1e6 + 500000,
	}, nil
}

type kruger struct {
	a     float64 // rectifying radius
	e     float64
	alpha [4]float64
	beta  [4]float64
	delta [4]float64
}

var grs80 = newKruger(grs80A, grs80F)

func newKruger(a, f float64) kruger {
	n := f / (2 - f)
	n2, n3, n4 := n*n, n*n*n, n*n*n*n
	return kruger{
		a: a / (1 + n) * (1 + n2/4 + n4/64),
		e: math.Sqrt(f * (2 - f)),
		alpha: [4]float64{
			n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180,
			13*n2/48 - 3*n3/5 + 557*n4/1440,
			61*n3/240 - 103*n4/140,
			49561 * n4 / 161280,
		},
		beta: [4]float64{
			n/2 - 2*n2/3 + 37*n3/96 - n4/360,
			n2/48 + n3/15 - 437*n4/1440,
			17*n3/480 - 37*n4/840,
			4397 * n4 / 161280,
		},
		delta: [4]float64{
			2*n - 2*n2/3 - 2*n3 + 116*n4/45,
			7*n2/3 - 8*n3/5 - 227*n4/45,
			56*n3/15 - 136*n4/35,
			4279 * n4 / 630,
		},
	}
}

// Forward maps geodetic degrees to (x northing, y easting) in metres.
func (p Projection) Forward(latDeg, lonDeg float64) (x, y float64) {
	k := grs80
	phi := latDeg * math.Pi / 180
	dl := (lonDeg - p.Lon0Deg) * math.Pi / 180

	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - k.e*math.Atanh(k.e*sinPhi))
	xi0 := math.Atan2(t, math.Cos(dl))
	eta0 := math.Atanh(math.Sin(dl) / math.Sqrt(1+t*t))

	xi, eta := xi0, eta0
	for j := 1; j <= 4; j++ {
		a := k.alpha[j-1]
		xi += a * math.Sin(2*float64(j)*xi0) * math.Cosh(2*float64(j)*eta0)
		eta += a * math.Cos(2*float64(j)*xi0) * math.Sinh(2*float64(j)*eta0)
	}
	x = p.FalseNorthing + p.K0*k.a*xi
	y = p.FalseEasting + p.K0*k.a*eta
	return x, y
}

// Inverse maps (x northing, y easting) back to geodetic degrees.
func (p Projection) Inverse(x, y float64) (latDeg, lonDeg float64) {
	k := grs80
	xi := (x - p.FalseNorthing) / (p.K0 * k.a)
	eta := (y - p.FalseEasting) / (p.K0 * k.a)

	xi0, eta0 := xi, eta
	for j := 1; j <= 4; j++ {
		b := k.beta[j-1]
		xi0 -= b * math.Sin(2*float64(j)*xi) * math.Cosh(2*float64(j)*eta)
		eta0 -= b * math.Cos(2*float64(j)*xi) * math.Sinh(2*float64(j)*eta)
	}
	chi := math.Asin(math.Sin(xi0) / math.Cosh(eta0))
	phi := chi
	for j := 1; j <= 4; j++ {
		phi += k.delta[j-1] * math.Sin(2*float64(j)*chi)
	}
	dl := math.Atan2(math.Sinh(eta0), math.Cos(xi0))
	return phi * 180 / math.Pi, p.Lon0Deg + dl*180/math.Pi
}
