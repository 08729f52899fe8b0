package geodesy

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestApproxGeoid(t *testing.T) {
	n, err := ApproxGeoid{}.Undulation(52, 19)
	if err != nil || n != 29.0 {
		t.Fatalf("N=%v err=%v", n, err)
	}
	n, _ = ApproxGeoid{}.Undulation(50, 20)
	if math.Abs(n-(29.0-3.2+0.4)) > 1e-9 {
		t.Fatalf("N=%v", n)
	}
}

func TestConverter_PL2000WithApproxHeight(t *testing.T) {
	c := NewPL2000Converter()
	r := c.Convert(52.0, 18.0, 150.0)
	if !r.Valid {
		t.Fatalf("expected valid result")
	}
	if math.Abs(r.X-5762899.772) > 0.05 || math.Abs(r.Y-6500000) > 1e-6 {
		t.Fatalf("x=%.3f y=%.3f", r.X, r.Y)
	}
	wantH := 150.0 - (29.0 + 0.4*(18.0-19.0))
	if math.Abs(r.HNormal-wantH) > 1e-9 || r.HEllipsoidal != 150 {
		t.Fatalf("h=%v want %v", r.HNormal, wantH)
	}
	if r.Method != MethodApprox || c.Method() != MethodApprox {
		t.Fatalf("method=%q", r.Method)
	}
}

func TestConverter_WithoutProjectionStillGivesHeight(t *testing.T) {
	c := NewConverter(nil, nil)
	r := c.Convert(52.0, 19.0, 100.0)
	if r.Valid {
		t.Fatalf("expected invalid plane coordinates")
	}
	if r.HNormal != 71.0 {
		t.Fatalf("h=%v want 71", r.HNormal)
	}
}

type failingModel struct{}

func (failingModel) Undulation(float64, float64) (float64, error) { return 0, errors.New("no grid") }
func (failingModel) Method() string                               { return "EVRF2007-grid" }

func TestConverter_FailingModelFallsBack(t *testing.T) {
	p, _ := PL2000(6)
	c := NewConverter(&p, failingModel{})
	r := c.Convert(52.0, 19.0, 100.0)
	if r.Method != MethodApprox || r.HNormal != 71.0 {
		t.Fatalf("method=%q h=%v", r.Method, r.HNormal)
	}
}

func TestGrid(t *testing.T) {
	src := `# lat0 lon0 dlat dlon rows cols
49 18 1 1 2 3
30 31 32
34 35 36
`
	g, err := ParseGrid(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseGrid: %v", err)
	}
	n, err := g.Undulation(49.5, 18.5)
	if err != nil || math.Abs(n-32.5) > 1e-9 {
		t.Fatalf("N=%v err=%v want 32.5", n, err)
	}
	n, _ = g.Undulation(50, 20)
	if n != 36 {
		t.Fatalf("corner N=%v want 36", n)
	}
	if _, err := g.Undulation(48.9, 18.5); !errors.Is(err, ErrOutsideGrid) {
		t.Fatalf("err=%v want outside", err)
	}

	c := NewConverter(nil, g)
	if r := c.Convert(49.5, 18.5, 100); r.Method != "grid" || math.Abs(r.HNormal-67.5) > 1e-9 {
		t.Fatalf("result=%+v", r)
	}
}

func TestParseGrid_Errors(t *testing.T) {
	for _, src := range []string{"", "49 18 1 1 2 2\n1 2 3", "49 18 0 1 2 2\n1 2 3 4", "49 18 1 1 2 2\n1 x 3 4"} {
		if _, err := ParseGrid(strings.NewReader(src)); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
}
