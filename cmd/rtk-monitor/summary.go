package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/MarcinM22/rtk-monitor/internal/project"
)

type pointAccuracy struct {
	ID     int
	Name   string
	StdH   float64
	StdAlt *float64
}

type projectSummary struct {
	Points   int
	WithXY   int
	WithH    int
	MinX     float64
	MaxX     float64
	MinY     float64
	MaxY     float64
	Accuracy []pointAccuracy
}

func summarizeProject(points []project.Point, acc []pointAccuracy) projectSummary {
	s := projectSummary{Points: len(points), Accuracy: acc}
	for _, p := range points {
		if p.H != nil {
			s.WithH++
		}
		if p.X == nil || p.Y == nil {
			continue
		}
		x, y := *p.X, *p.Y
		if s.WithXY == 0 {
			s.MinX, s.MaxX, s.MinY, s.MaxY = x, x, y, y
		} else {
			s.MinX = math.Min(s.MinX, x)
			s.MaxX = math.Max(s.MaxX, x)
			s.MinY = math.Min(s.MinY, y)
			s.MaxY = math.Max(s.MaxY, y)
		}
		s.WithXY++
	}
	return s
}

// parseReportAccuracy reads the per-point accuracy lines of a project report.
// Lines it does not recognise are skipped.
func parseReportAccuracy(r io.Reader) ([]pointAccuracy, error) {
	var out []pointAccuracy
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Punkt #"):
			rest := strings.TrimPrefix(line, "Punkt #")
			idStr, name, ok := strings.Cut(rest, ":")
			if !ok {
				continue
			}
			id, err := strconv.Atoi(strings.TrimSpace(idStr))
			if err != nil {
				continue
			}
			out = append(out, pointAccuracy{ID: id, Name: strings.TrimSpace(name), StdH: math.NaN()})
		case len(out) > 0 && strings.HasPrefix(line, "Std poziom:"):
			if v, ok := parseMeters(strings.TrimPrefix(line, "Std poziom:")); ok {
				out[len(out)-1].StdH = v
			}
		case len(out) > 0 && strings.HasPrefix(line, "Std wysokosc:"):
			if v, ok := parseMeters(strings.TrimPrefix(line, "Std wysokosc:")); ok {
				out[len(out)-1].StdAlt = &v
			}
		}
	}
	return out, sc.Err()
}

func parseMeters(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "m"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func printProjectSummary(w io.Writer, dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("path is empty")
	}

	points, err := project.ReadDir(dir)
	if err != nil {
		return err
	}

	var acc []pointAccuracy
	f, err := os.Open(project.ReportPath(dir))
	switch {
	case err == nil:
		acc, err = parseReportAccuracy(f)
		_ = f.Close()
		if err != nil {
			return err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	s := summarizeProject(points, acc)
	fmt.Fprintf(w, "path: %s\n", dir)
	fmt.Fprintf(w, "points: %d\n", s.Points)
	fmt.Fprintf(w, "with_xy: %d\n", s.WithXY)
	fmt.Fprintf(w, "with_h: %d\n", s.WithH)
	if s.WithXY > 0 {
		fmt.Fprintf(w, "extent_x: %.3f .. %.3f (%.3f m)\n", s.MinX, s.MaxX, s.MaxX-s.MinX)
		fmt.Fprintf(w, "extent_y: %.3f .. %.3f (%.3f m)\n", s.MinY, s.MaxY, s.MaxY-s.MinY)
	}

	var sum, max float64
	n := 0
	worst := -1
	for i, a := range s.Accuracy {
		if math.IsNaN(a.StdH) {
			continue
		}
		sum += a.StdH
		n++
		if worst < 0 || a.StdH > max {
			max = a.StdH
			worst = i
		}
	}
	if n == 0 {
		fmt.Fprintf(w, "accuracy: no report\n")
		return nil
	}
	fmt.Fprintf(w, "std_horizontal_mean: %.4f m\n", sum/float64(n))
	fmt.Fprintf(w, "std_horizontal_max: %.4f m\n", max)
	a := s.Accuracy[worst]
	fmt.Fprintf(w, "worst_point: #%d %s\n", a.ID, a.Name)
	return nil
}
