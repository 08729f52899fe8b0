package geodesy

import (
	"math"
	"testing"
)

func TestPL2000_CentralMeridian(t *testing.T) {
	p, err := PL2000(6)
	if err != nil {
		t.Fatalf("PL2000: %v", err)
	}
	cases := []struct {
		lat   float64
		wantX float64
	}{
		{50.0, 5540420.396},
		{52.0, 5762899.772},
		{54.5, 6041105.654},
	}
	for _, tc := range cases {
		x, y := p.Forward(tc.lat, 18.0)
		if math.Abs(x-tc.wantX) > 0.05 {
			t.Fatalf("lat=%v x=%.3f want %.3f", tc.lat, x, tc.wantX)
		}
		if math.Abs(y-6500000) > 1e-6 {
			t.Fatalf("lat=%v y=%.6f want 6500000", tc.lat, y)
		}
	}
}

func TestPL2000_SymmetricAboutMeridian(t *testing.T) {
	p, _ := PL2000(6)
	xw, yw := p.Forward(50.5, 17.2)
	xe, ye := p.Forward(50.5, 18.8)
	if math.Abs(xw-xe) > 1e-6 {
		t.Fatalf("x west=%.6f east=%.6f", xw, xe)
	}
	if math.Abs((6500000-yw)-(ye-6500000)) > 1e-6 {
		t.Fatalf("y not symmetric: %.6f %.6f", yw, ye)
	}
	if ye <= 6500000 || yw >= 6500000 {
		t.Fatalf("easting on wrong side: %.3f %.3f", yw, ye)
	}
}

func TestPL2000_RoundTrip(t *testing.T) {
	p, _ := PL2000(6)
	for _, pt := range [][2]float64{{50.06, 19.94}, {49.3, 16.6}, {54.4, 18.6}, {52.0, 18.0}} {
		x, y := p.Forward(pt[0], pt[1])
		lat, lon := p.Inverse(x, y)
		if math.Abs(lat-pt[0]) > 1e-9 || math.Abs(lon-pt[1]) > 1e-9 {
			t.Fatalf("round trip %v -> (%.3f, %.3f) -> (%.10f, %.10f)", pt, x, y, lat, lon)
		}
	}
}

func TestPL2000_Zones(t *testing.T) {
	p, err := PL2000(7)
	if err != nil || p.Lon0Deg != 21 || p.FalseEasting != 7500000 {
		t.Fatalf("zone 7=%+v err=%v", p, err)
	}
	if _, err := PL2000(4); err == nil {
		t.Fatalf("expected error for zone 4")
	}
}
