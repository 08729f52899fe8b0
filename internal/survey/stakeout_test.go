package survey

import (
	"math"
	"testing"

	"github.com/MarcinM22/rtk-monitor/internal/geodesy"
	"github.com/MarcinM22/rtk-monitor/internal/gps"
)

func TestCompute_Quadrants(t *testing.T) {
	cases := []struct {
		dx, dy  float64
		bearing float64
	}{
		{10, 0, 0},
		{0, 10, 90},
		{-10, 0, 180},
		{0, -10, 270},
		{10, 10, 45},
		{-10, -10, 225},
	}
	for _, tc := range cases {
		d := Compute(1000+tc.dx, 2000+tc.dy, nil, 1000, 2000, nil)
		if math.Abs(d.BearingDeg-tc.bearing) > 1e-9 {
			t.Fatalf("d=(%v,%v) bearing=%v want %v", tc.dx, tc.dy, d.BearingDeg, tc.bearing)
		}
		if math.Abs(d.Distance-math.Hypot(tc.dx, tc.dy)) > 1e-9 {
			t.Fatalf("distance=%v", d.Distance)
		}
		if d.DH != nil {
			t.Fatalf("dh without heights")
		}
	}
}

func TestCompute_HeightAndZeroDistance(t *testing.T) {
	d := Compute(5, 5, fptr(101.5), 5, 5, fptr(100))
	if d.Distance != 0 || d.BearingDeg != 0 {
		t.Fatalf("d=%+v", d)
	}
	if d.DH == nil || *d.DH != 1.5 {
		t.Fatalf("dh=%v", d.DH)
	}
}

func TestStakeout_PlaneConversion(t *testing.T) {
	so := NewStakeout(geodesy.NewPL2000Converter())
	if r := so.Current(rtkFix(52, 18, 100)); r.Active {
		t.Fatalf("inactive stakeout reported %+v", r)
	}

	here := geodesy.NewPL2000Converter().Convert(52, 18, 135)
	if err := so.Set(Target{Name: "K1", X: here.X + 3, Y: here.Y + 4, H: fptr(80)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	r := so.Current(rtkFix(52, 18, 100))
	if !r.Active || !r.Valid || r.Method != MethodPlane {
		t.Fatalf("result=%+v", r)
	}
	if math.Abs(r.Distance-5) > 1e-6 || math.Abs(r.BearingDeg-53.130102) > 1e-5 {
		t.Fatalf("distance=%v bearing=%v", r.Distance, r.BearingDeg)
	}
	if r.DH == nil || math.Abs(*r.DH-(80-here.HNormal)) > 1e-9 {
		t.Fatalf("dh=%v", r.DH)
	}

	noFix := so.Current(gps.PositionFix{})
	if !noFix.Active || noFix.Valid {
		t.Fatalf("no fix result=%+v", noFix)
	}

	so.Clear()
	if _, ok := so.Target(); ok {
		t.Fatalf("target after clear")
	}
	if err := so.Set(Target{X: math.NaN(), Y: 1}); err != ErrBadTarget {
		t.Fatalf("err=%v", err)
	}
}

func TestStakeout_GeographicFallback(t *testing.T) {
	so := NewStakeout(geodesy.NewConverter(nil, nil))
	// About 111 m due north.
	if err := so.Set(Target{Name: "N", X: 0, Y: 0, Lat: fptr(52.001), Lon: fptr(18.0)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	r := so.Current(rtkFix(52, 18, 100))
	if !r.Valid || r.Method != MethodGeographic {
		t.Fatalf("result=%+v", r)
	}
	if math.Abs(r.Distance-111.19) > 0.5 {
		t.Fatalf("distance=%v", r.Distance)
	}
	if r.BearingDeg > 0.01 && r.BearingDeg < 359.99 {
		t.Fatalf("bearing=%v want north", r.BearingDeg)
	}
	if math.Abs(r.DX-r.Distance) > 0.01 || math.Abs(r.DY) > 0.01 {
		t.Fatalf("dx=%v dy=%v", r.DX, r.DY)
	}

	so.Clear()
	_ = so.Set(Target{Name: "plane only", X: 1, Y: 1})
	if r := so.Current(rtkFix(52, 18, 100)); !r.Active || r.Valid {
		t.Fatalf("result=%+v", r)
	}
}
