package geodesy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// MethodApprox names the linear regional geoid fallback.
const MethodApprox = "approx"

// ErrOutsideGrid is returned by a grid model for points it does not cover.
var ErrOutsideGrid = errors.New("geodesy: point outside geoid grid")

// HeightModel returns the geoid undulation N at a point; H = h - N.
type HeightModel interface {
	Undulation(latDeg, lonDeg float64) (float64, error)
	Method() string
}

// ApproxGeoid is a plane fitted to the geoid over Poland. Expect 0.5 to 1 m
// error; it exists so a height is always available.
type ApproxGeoid struct{}

func (ApproxGeoid) Undulation(latDeg, lonDeg float64) (float64, error) {
	return 29.0 + 1.6*(latDeg-52.0) + 0.4*(lonDeg-19.0), nil
}

func (ApproxGeoid) Method() string { return MethodApprox }

// Grid is a regular lat/lon geoid grid with bilinear interpolation.
//
// The text format is a header line "lat0 lon0 dlat dlon rows cols" followed
// by rows*cols undulations in row-major order, south row first. Blank lines
// and lines starting with '#' are ignored.
type Grid struct {
	Name       string
	lat0, lon0 float64
	dlat, dlon float64
	rows, cols int
	n          []float64
}

func LoadGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geodesy: open grid: %w", err)
	}
	defer f.Close()
	g, err := ParseGrid(f)
	if err != nil {
		return nil, fmt.Errorf("geodesy: %s: %w", path, err)
	}
	g.Name = "grid"
	return g, nil
}

func ParseGrid(r io.Reader) (*Grid, error) {
	var nums []float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, f := range strings.Fields(line) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", f)
			}
			nums = append(nums, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(nums) < 6 {
		return nil, fmt.Errorf("grid header needs 6 values")
	}
	g := &Grid{
		Name: "grid",
		lat0: nums[0], lon0: nums[1],
		dlat: nums[2], dlon: nums[3],
		rows: int(nums[4]), cols: int(nums[5]),
	}
	if g.rows < 2 || g.cols < 2 || g.dlat <= 0 || g.dlon <= 0 {
		return nil, fmt.Errorf("grid header invalid")
	}
	g.n = nums[6:]
	if len(g.n) != g.rows*g.cols {
		return nil, fmt.Errorf("grid has %d values, header says %d", len(g.n), g.rows*g.cols)
	}
	return g, nil
}

func (g *Grid) Undulation(latDeg, lonDeg float64) (float64, error) {
	fr := (latDeg - g.lat0) / g.dlat
	fc := (lonDeg - g.lon0) / g.dlon
	if fr < 0 || fc < 0 || fr > float64(g.rows-1) || fc > float64(g.cols-1) || math.IsNaN(fr+fc) {
		return 0, ErrOutsideGrid
	}
	r0 := int(math.Min(math.Floor(fr), float64(g.rows-2)))
	c0 := int(math.Min(math.Floor(fc), float64(g.cols-2)))
	tr, tc := fr-float64(r0), fc-float64(c0)

	at := func(r, c int) float64 { return g.n[r*g.cols+c] }
	south := at(r0, c0)*(1-tc) + at(r0, c0+1)*tc
	north := at(r0+1, c0)*(1-tc) + at(r0+1, c0+1)*tc
	return south*(1-tr) + north*tr, nil
}

func (g *Grid) Method() string { return g.Name }
